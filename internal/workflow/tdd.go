// Package workflow implements the RED -> GREEN -> REFACTOR cycle engine that
// drives one fix task from admission to a terminal phase.
package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fixflow/fixflow/internal/domain"
	"github.com/fixflow/fixflow/internal/guard"
	"github.com/fixflow/fixflow/internal/store"
)

// TestRunner invokes the test suite touching the given paths. The engine
// only inspects Passed.
type TestRunner interface {
	Run(ctx context.Context, paths []string) (domain.TestResult, error)
}

// CoverageChecker reports diff coverage over changed lines as a 0-100
// percentage.
type CoverageChecker interface {
	DiffCoverage(ctx context.Context, paths []string) (float64, error)
}

// MutationScorer reports a mutation-testing score as a 0-100 percentage.
// The score is advisory: a low score is surfaced as a warning, never as a
// cycle failure.
type MutationScorer interface {
	MutationScore(ctx context.Context, paths []string) (float64, error)
}

// PhaseWorker performs the actual edits of each phase. Its internals (how a
// failing test is authored, how the fix is written) are the agent's concern;
// the engine only sequences and gates them.
type PhaseWorker interface {
	AuthorTest(ctx context.Context, task *domain.FixTask) error
	ApplyFix(ctx context.Context, task *domain.FixTask) (domain.ChangeStats, error)
	Refactor(ctx context.Context, task *domain.FixTask) error
}

// validTransitions defines the legal phase transitions. Failed is reachable
// from every non-terminal phase; no transition ever revisits an earlier phase.
var validTransitions = map[domain.TddPhase]map[domain.TddPhase]bool{
	domain.PhaseRed:      {domain.PhaseGreen: true, domain.PhaseFailed: true},
	domain.PhaseGreen:    {domain.PhaseRefactor: true, domain.PhaseFailed: true},
	domain.PhaseRefactor: {domain.PhaseCompleted: true, domain.PhaseFailed: true},
}

// IsValidTransition checks if a phase transition is legal.
func IsValidTransition(from, to domain.TddPhase) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

const (
	defaultCoverageThreshold = 80.0
	defaultMutationThreshold = 30.0
	defaultMaxLinesOfCode    = 300
	defaultRunTimeout        = 30 * time.Second
)

// Engine drives the TDD state machine for one fix task at a time.
type Engine struct {
	Guard    *guard.Guard
	Runner   TestRunner
	Coverage CoverageChecker
	Mutation MutationScorer // optional

	DB        *sql.DB // optional; nil disables archival
	TaskRepo  *store.FixTaskRepo
	EventRepo *store.CycleEventRepo

	// CoverageThreshold is the minimum diff coverage to complete a refactor
	// (default 80).
	CoverageThreshold float64
	// MutationThreshold is the advisory mutation score floor (default 30).
	MutationThreshold float64
	// RunTimeout bounds each test-runner invocation (default 30s).
	RunTimeout time.Duration

	Budget ChangeBudget

	log *zap.Logger
}

// NewEngine creates a cycle engine with standard thresholds.
func NewEngine(g *guard.Guard, runner TestRunner, coverage CoverageChecker, db *sql.DB, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		Guard:             g,
		Runner:            runner,
		Coverage:          coverage,
		DB:                db,
		TaskRepo:          &store.FixTaskRepo{},
		EventRepo:         &store.CycleEventRepo{},
		CoverageThreshold: defaultCoverageThreshold,
		MutationThreshold: defaultMutationThreshold,
		RunTimeout:        defaultRunTimeout,
		Budget:            NewChangeBudget(),
		log:               log,
	}
}

// cycle carries the mutable state of one Execute call so the finalizer can
// release resources and archive the task no matter how the phases exit.
type cycle struct {
	task      *domain.FixTask
	admission *guard.Admission
	seq       int64
	createdAt int64
	result    domain.CycleResult
}

// Execute admits the task and drives it through Red, Green, and Refactor.
// Admission failures are rejections: the task never enters Red and nothing
// needs cleanup. Once admitted, the lock handle and concurrency ticket are
// released exactly once by a single deferred finalizer, regardless of which
// phase fails or panics.
func (e *Engine) Execute(ctx context.Context, task *domain.FixTask, worker PhaseWorker) (domain.CycleResult, error) {
	if task.Phase.IsTerminal() {
		return domain.CycleResult{}, domain.ErrCycleAlreadyTerminal
	}

	adm, err := e.Guard.Admit(ctx, *task)
	if err != nil {
		return domain.CycleResult{}, err
	}

	c := &cycle{
		task:      task,
		admission: adm,
		createdAt: time.Now().Unix(),
		result:    domain.CycleResult{TaskID: task.ID},
	}
	defer e.finalize(c)

	task.Phase = domain.PhaseRed
	e.appendEvent(c, "", domain.PhaseRed, "admitted")

	if err := e.runRed(ctx, c, worker); err != nil {
		return c.result, err
	}
	if err := e.runGreen(ctx, c, worker); err != nil {
		return c.result, err
	}
	if err := e.runRefactor(ctx, c, worker); err != nil {
		return c.result, err
	}

	e.transition(c, domain.PhaseCompleted, "all gates passed")
	c.result.Phase = domain.PhaseCompleted
	return c.result, nil
}

// runRed authors a failing test and verifies it actually fails. A test that
// unexpectedly passes signals it is not exercising new behavior.
func (e *Engine) runRed(ctx context.Context, c *cycle, worker PhaseWorker) error {
	if err := worker.AuthorTest(ctx, c.task); err != nil {
		return e.failPhase(c, err)
	}

	res, err := e.runTests(ctx, c.task.AffectedPaths)
	if err != nil {
		return e.failPhase(c, err)
	}
	if res.Passed {
		return e.fail(c, domain.ReasonTestUnexpectedlyPassed)
	}

	e.transition(c, domain.PhaseGreen, "failing test confirmed")
	return nil
}

// runGreen applies the minimal fix, requires the suite to pass, and enforces
// the changed-lines budget.
func (e *Engine) runGreen(ctx context.Context, c *cycle, worker PhaseWorker) error {
	stats, err := worker.ApplyFix(ctx, c.task)
	if err != nil {
		return e.failPhase(c, err)
	}

	res, err := e.runTests(ctx, c.task.AffectedPaths)
	if err != nil {
		return e.failPhase(c, err)
	}
	if !res.Passed {
		return e.fail(c, domain.ReasonTestsStillFailing)
	}

	maxLines := c.task.Agent.MaxLinesOfCode
	if maxLines == 0 {
		maxLines = defaultMaxLinesOfCode
	}
	switch e.Budget.Evaluate(stats, maxLines) {
	case BudgetHalt:
		// The change is discarded from the task's perspective; written files
		// are left for human inspection, not auto-reverted.
		return e.fail(c, domain.ReasonLocLimitExceeded)
	case BudgetWarn:
		c.result.Warnings = append(c.result.Warnings, e.Budget.WarnMessage(stats, maxLines))
	}

	e.transition(c, domain.PhaseRefactor, fmt.Sprintf("suite green, %d lines changed", stats.Total()))
	return nil
}

// runRefactor applies behavior-preserving cleanup and gates on the suite
// staying green and diff coverage meeting the threshold. A refactor failure
// must not silently downgrade to "green": it fails the whole cycle.
func (e *Engine) runRefactor(ctx context.Context, c *cycle, worker PhaseWorker) error {
	if err := worker.Refactor(ctx, c.task); err != nil {
		return e.failPhase(c, err)
	}

	res, err := e.runTests(ctx, c.task.AffectedPaths)
	if err != nil {
		return e.failPhase(c, err)
	}
	if !res.Passed {
		return e.fail(c, domain.ReasonTestsStillFailing)
	}

	cov, err := e.Coverage.DiffCoverage(ctx, c.task.AffectedPaths)
	if err != nil {
		return e.failPhase(c, err)
	}
	if cov < e.CoverageThreshold {
		return e.fail(c, domain.ReasonCoverageBelowThreshold)
	}

	if e.Mutation != nil {
		if score, err := e.Mutation.MutationScore(ctx, c.task.AffectedPaths); err == nil && score < e.MutationThreshold {
			c.result.Warnings = append(c.result.Warnings,
				fmt.Sprintf("mutation score %.1f%% below %.1f%% threshold", score, e.MutationThreshold))
		}
	}
	return nil
}

// runTests invokes the runner under the configured timeout.
func (e *Engine) runTests(ctx context.Context, paths []string) (domain.TestResult, error) {
	timeout := e.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := e.Runner.Run(runCtx, paths)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.TestResult{}, &domain.TddPhaseFailure{Reason: domain.ReasonTimeout}
		}
		return domain.TestResult{}, err
	}
	return res, nil
}

// fail moves the cycle to Failed with the given gate reason.
func (e *Engine) fail(c *cycle, reason string) error {
	failure := &domain.TddPhaseFailure{Phase: c.task.Phase, Reason: reason}
	e.transition(c, domain.PhaseFailed, reason)
	c.result.Phase = domain.PhaseFailed
	c.result.FailureReason = reason
	return failure
}

// failPhase handles collaborator errors: timeouts become a gate failure for
// the current phase, anything else surfaces as-is after the finalizer runs.
func (e *Engine) failPhase(c *cycle, err error) error {
	var pf *domain.TddPhaseFailure
	if errors.As(err, &pf) && pf.Reason == domain.ReasonTimeout {
		return e.fail(c, domain.ReasonTimeout)
	}
	e.transition(c, domain.PhaseFailed, err.Error())
	c.result.Phase = domain.PhaseFailed
	c.result.FailureReason = err.Error()
	return err
}

// transition validates and applies a phase change, appending a cycle event.
func (e *Engine) transition(c *cycle, to domain.TddPhase, reason string) {
	from := c.task.Phase
	if !IsValidTransition(from, to) {
		// Transitions are driven only by this engine; an illegal one is a
		// bug worth surfacing in logs rather than an error the caller can act on.
		e.log.Error("illegal phase transition",
			zap.String("task", c.task.ID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return
	}
	c.task.Phase = to
	e.appendEvent(c, from, to, reason)
}

func (e *Engine) appendEvent(c *cycle, from, to domain.TddPhase, reason string) {
	c.seq++
	if e.DB == nil || e.EventRepo == nil {
		return
	}
	_ = e.EventRepo.Append(context.Background(), e.DB, domain.CycleEvent{
		TaskID:    c.task.ID,
		SeqNo:     c.seq,
		FromPhase: from,
		ToPhase:   to,
		Reason:    reason,
		CreatedAt: time.Now().Unix(),
	})
}

// finalize is the single shared exit path for Completed and Failed. It forces
// a terminal phase if a panic or cancellation left the task mid-phase, then
// releases the lock handle and concurrency ticket exactly once and archives
// the task.
func (e *Engine) finalize(c *cycle) {
	if !c.task.Phase.IsTerminal() {
		e.transition(c, domain.PhaseFailed, "aborted")
		c.result.Phase = domain.PhaseFailed
		if c.result.FailureReason == "" {
			c.result.FailureReason = "aborted"
		}
	}

	if err := e.Guard.Release(c.admission); err != nil {
		e.log.Error("release admission", zap.String("task", c.task.ID), zap.Error(err))
	}

	if e.DB != nil && e.TaskRepo != nil {
		paths, _ := json.Marshal(c.task.AffectedPaths)
		_ = e.TaskRepo.Archive(context.Background(), e.DB, domain.TaskRecord{
			TaskID:        c.task.ID,
			Agent:         c.task.Agent.Name,
			FilLevel:      c.task.FilLevel,
			Phase:         c.task.Phase,
			FailureReason: c.result.FailureReason,
			PathsJSON:     string(paths),
			CreatedAt:     c.createdAt,
			FinishedAt:    time.Now().Unix(),
		})
	}

	e.log.Info("cycle finished",
		zap.String("task", c.task.ID),
		zap.String("phase", string(c.task.Phase)),
		zap.String("reason", c.result.FailureReason))
}
