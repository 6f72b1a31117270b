// Package domain defines the core types for the fixflow orchestration engine.
package domain

// FilLevel classifies the risk of a change, from formatting-only (FIL-0)
// up to API or migration changes (FIL-3).
type FilLevel int

const (
	Fil0 FilLevel = iota // formatting, comments
	Fil1                 // renames, constant extraction
	Fil2                 // config and utility changes
	Fil3                 // API changes, migrations
)

// String returns the canonical "FIL-n" form.
func (f FilLevel) String() string {
	switch f {
	case Fil0:
		return "FIL-0"
	case Fil1:
		return "FIL-1"
	case Fil2:
		return "FIL-2"
	case Fil3:
		return "FIL-3"
	default:
		return "FIL-?"
	}
}

// ParseFilLevel converts the "FIL-n" form back to a FilLevel.
func ParseFilLevel(s string) (FilLevel, bool) {
	switch s {
	case "FIL-0":
		return Fil0, true
	case "FIL-1":
		return Fil1, true
	case "FIL-2":
		return Fil2, true
	case "FIL-3":
		return Fil3, true
	default:
		return 0, false
	}
}

// FilPolicy is an agent's allow/block list over FIL levels.
// An empty Allow list means "no explicit restriction", not "block everything".
type FilPolicy struct {
	Allow []FilLevel
	Block []FilLevel
}

// LockScope declares whether an agent reserves its affected paths.
type LockScope string

const (
	LockNone     LockScope = "none"
	LockDeclared LockScope = "declared"
)

// AgentProfile is the immutable per-agent configuration record.
// MaxParallel <= 0 means the agent is not subject to admission control.
type AgentProfile struct {
	Name           string
	FilPolicy      FilPolicy
	MaxParallel    int
	LockScope      LockScope
	MaxLinesOfCode int
	Priority       int
}

// TddPhase is the state of one fix task inside the TDD cycle.
type TddPhase string

const (
	PhaseRed       TddPhase = "red"
	PhaseGreen     TddPhase = "green"
	PhaseRefactor  TddPhase = "refactor"
	PhaseCompleted TddPhase = "completed"
	PhaseFailed    TddPhase = "failed"
)

// IsTerminal reports whether the phase ends the cycle.
func (p TddPhase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// FixTask is one bounded unit of automated code change driven through the
// TDD gate. Only the TddCycleEngine mutates Phase.
type FixTask struct {
	ID            string
	AffectedPaths []string
	FilLevel      FilLevel
	Agent         AgentProfile
	Phase         TddPhase
}

// TestResult is the outcome of one test-runner invocation.
type TestResult struct {
	Passed bool
	Output string
}

// ChangeStats summarizes the size of a change.
type ChangeStats struct {
	LinesAdded   int
	LinesDeleted int
}

// Total returns added plus deleted lines.
func (c ChangeStats) Total() int {
	return c.LinesAdded + c.LinesDeleted
}

// CycleResult is returned to the caller when a fix task reaches a terminal
// phase. Warnings carry advisory findings such as a low mutation score.
type CycleResult struct {
	TaskID        string
	Phase         TddPhase
	FailureReason string
	Warnings      []string
}

// PartitionType distinguishes the coarse repository trees.
type PartitionType string

const (
	PartitionSource  PartitionType = "source"
	PartitionLibrary PartitionType = "library"
	PartitionTest    PartitionType = "test"
	PartitionDiff    PartitionType = "diff"
)

// Partition is one independent slice of an assessment scope.
// It is immutable and consumed by exactly one concurrent execution.
type Partition struct {
	ID    string
	Paths []string
	Type  PartitionType
}

// Finding is one issue reported by a partition execution.
type Finding struct {
	Path     string
	Type     string
	Severity string
	Message  string
}

// DedupKey identifies duplicate findings across partitions.
func (f Finding) DedupKey() string {
	return f.Path + "|" + f.Type
}

// PartitionResult is the outcome of one partition execution. A failed
// partition carries its error here instead of aborting the fan-out.
type PartitionResult struct {
	Partition Partition
	Findings  []Finding
	Err       error
}

// MergedResult is the fan-in output of a partitioned run.
type MergedResult struct {
	RunID      string
	Findings   []Finding
	Partitions []PartitionResult
}

// Failed returns the results of partitions that ended in error.
func (m MergedResult) Failed() []PartitionResult {
	var out []PartitionResult
	for _, p := range m.Partitions {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// CoordinationMode selects how a workflow executes its agents.
type CoordinationMode string

const (
	ModeSequential CoordinationMode = "sequential"
	ModeParallel   CoordinationMode = "parallel"
)

// ConflictKind classifies a coordination conflict.
type ConflictKind string

const (
	ConflictResource ConflictKind = "resource"
	ConflictTask     ConflictKind = "task"
	ConflictPriority ConflictKind = "priority"
)

// CoordinationConflict records one detected conflict and how it was resolved.
type CoordinationConflict struct {
	Kind       ConflictKind
	Path       string
	Winner     string
	Loser      string
	Resolution string
}

// AgentRun is the outcome of one agent execution inside a workflow.
type AgentRun struct {
	Agent    string
	Command  string
	Err      error
	Requeued bool
}

// CoordinationResult summarizes a coordinated workflow.
type CoordinationResult struct {
	Workflow  string
	Mode      CoordinationMode
	Runs      []AgentRun
	Conflicts []CoordinationConflict
}

// Failed returns the runs that ended in error.
func (r CoordinationResult) Failed() []AgentRun {
	var out []AgentRun
	for _, run := range r.Runs {
		if run.Err != nil {
			out = append(out, run)
		}
	}
	return out
}

// CycleEvent is one append-only record of a TDD phase transition.
type CycleEvent struct {
	ID        int64
	TaskID    string
	SeqNo     int64
	FromPhase TddPhase
	ToPhase   TddPhase
	Reason    string
	CreatedAt int64
}

// TaskRecord is the archived form of a terminal FixTask.
type TaskRecord struct {
	TaskID        string
	Agent         string
	FilLevel      FilLevel
	Phase         TddPhase
	FailureReason string
	PathsJSON     string
	CreatedAt     int64
	FinishedAt    int64
}

// AuditRecord logs admission decisions, conflicts, and escalations.
type AuditRecord struct {
	ID           string
	TaskID       string
	Category     string
	Actor        string
	Action       string
	RequestJSON  string
	DecisionJSON string
	Severity     string
	CreatedAt    int64
}

// FindingRecord is the persisted form of a merged assessment finding.
type FindingRecord struct {
	ID        string
	RunID     string
	Path      string
	Type      string
	Severity  string
	Message   string
	CreatedAt int64
}
