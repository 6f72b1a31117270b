package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Lock table errors (-32010 to -32029) ----

var (
	ErrHandleReleased = &EngineError{Code: -32010, Message: "lock handle already released"}
	ErrEmptyPathSet   = &EngineError{Code: -32011, Message: "acquire requires at least one path"}
)

// LockConflictError reports the first path that was already held when an
// all-or-nothing acquire failed. No paths remain reserved after it is returned.
type LockConflictError struct {
	Path   string
	Holder string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("lock conflict: %q held by %s", e.Path, e.Holder)
}

// ---- Admission errors (-32030 to -32049) ----

var (
	ErrTicketReleased = &EngineError{Code: -32030, Message: "admission ticket already released"}
	ErrTicketUnknown  = &EngineError{Code: -32031, Message: "admission ticket not issued by this limiter"}
)

// ConcurrencyExceededError reports that an agent's in-flight count reached
// its configured maximum. Recoverable: the caller may retry later.
type ConcurrencyExceededError struct {
	Agent string
	Max   int
}

func (e *ConcurrencyExceededError) Error() string {
	return fmt.Sprintf("concurrency exceeded: agent %s at max %d", e.Agent, e.Max)
}

// FilBlockedError reports a policy rejection. Not recoverable by retry;
// the task must be escalated to a human or higher-privilege agent.
type FilBlockedError struct {
	Agent  string
	Level  FilLevel
	Reason string
}

func (e *FilBlockedError) Error() string {
	return fmt.Sprintf("fil blocked: agent %s may not perform %s (%s)", e.Agent, e.Level, e.Reason)
}

// ---- TDD cycle errors (-32050 to -32069) ----

var (
	ErrCycleAlreadyTerminal = &EngineError{Code: -32050, Message: "fix task is already in a terminal phase"}
	ErrCycleNotAdmitted     = &EngineError{Code: -32051, Message: "fix task was not admitted"}
)

// Failure reasons attached to TddPhaseFailure.
const (
	ReasonTestUnexpectedlyPassed = "test-unexpectedly-passed"
	ReasonTestsStillFailing      = "tests-still-failing"
	ReasonLocLimitExceeded       = "loc-limit-exceeded"
	ReasonCoverageBelowThreshold = "coverage-below-threshold"
	ReasonTimeout                = "timeout"
)

// TddPhaseFailure reports why a cycle reached the Failed phase. It is always
// surfaced after the finalizer has released the task's lock and ticket.
type TddPhaseFailure struct {
	Phase  TddPhase
	Reason string
}

func (e *TddPhaseFailure) Error() string {
	return fmt.Sprintf("tdd cycle failed in %s: %s", e.Phase, e.Reason)
}

// ---- Partition / coordination errors (-32070 to -32089) ----

var (
	ErrUnknownScope     = &EngineError{Code: -32070, Message: "unknown assessment scope"}
	ErrNoPartitions     = &EngineError{Code: -32071, Message: "scope produced no partitions"}
	ErrUnknownHandler   = &EngineError{Code: -32072, Message: "no handler registered for agent/command pair"}
	ErrDuplicateHandler = &EngineError{Code: -32073, Message: "handler already registered for agent/command pair"}
	ErrUnknownAgent     = &EngineError{Code: -32074, Message: "agent profile not found"}
	ErrRetriesExhausted = &EngineError{Code: -32075, Message: "admission retries exhausted"}
)

// PartitionError wraps a failure that is isolated to one partition.
// It is reported alongside successful partitions, never propagated.
type PartitionError struct {
	PartitionID string
	Cause       error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %s failed: %v", e.PartitionID, e.Cause)
}

func (e *PartitionError) Unwrap() error { return e.Cause }

// ---- Store / config errors (-32130 to -32159) ----

var (
	ErrStoreInit     = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrTaskNotFound  = &EngineError{Code: -32131, Message: "fix task not found"}
	ErrDuplicateTask = &EngineError{Code: -32132, Message: "fix task already archived"}
	ErrConfigInvalid = &EngineError{Code: -32136, Message: "invalid configuration"}
)
