// Package lock implements the path-based mutual exclusion table that all
// concurrent agent work is serialized through.
package lock

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fixflow/fixflow/internal/domain"
)

// holder records who owns a path and under which handle.
type holder struct {
	agent      string
	handleID   string
	acquiredAt time.Time
}

// Handle represents one successful all-or-nothing acquire. It is the only
// token that can release the paths it covers.
type Handle struct {
	id    string
	agent string
	paths []string
}

// Agent returns the name of the agent holding the handle.
func (h *Handle) Agent() string { return h.agent }

// Paths returns the paths covered by the handle.
func (h *Handle) Paths() []string { return h.paths }

// Table is the exclusive-lock registry keyed by path. At most one holder
// exists per path at any instant. State lives for the process lifetime only;
// a restart releases everything.
type Table struct {
	mu   sync.Mutex
	held map[string]holder
	log  *zap.Logger
}

// NewTable creates an empty lock table. A nil logger is replaced with a no-op.
func NewTable(log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		held: make(map[string]holder),
		log:  log,
	}
}

// Acquire reserves every path in the set for the named agent, or none of
// them. If any path is already held, paths reserved earlier in this call are
// rolled back and a LockConflictError naming the busy path is returned.
// The whole call is a single critical section: concurrent acquires over
// overlapping sets never interleave.
func (t *Table) Acquire(agentName string, paths []string) (*Handle, error) {
	paths = dedupe(paths)
	if len(paths) == 0 {
		return nil, domain.ErrEmptyPathSet
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	h := &Handle{
		id:    uuid.NewString(),
		agent: agentName,
		paths: paths,
	}
	now := time.Now()

	var reserved []string
	for _, p := range paths {
		if existing, busy := t.held[p]; busy {
			for _, r := range reserved {
				delete(t.held, r)
			}
			t.log.Debug("lock conflict",
				zap.String("agent", agentName),
				zap.String("path", p),
				zap.String("holder", existing.agent))
			return nil, &domain.LockConflictError{Path: p, Holder: existing.agent}
		}
		t.held[p] = holder{agent: agentName, handleID: h.id, acquiredAt: now}
		reserved = append(reserved, p)
	}

	t.log.Debug("locks acquired",
		zap.String("agent", agentName),
		zap.Strings("paths", paths))
	return h, nil
}

// Release removes every path covered by the handle. It is idempotent:
// releasing an already-released or nil handle is a no-op, because failure
// paths may release after an acquire rollback already ran. Paths held by a
// different handle are never touched.
func (t *Table) Release(h *Handle) {
	if h == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range h.paths {
		if existing, ok := t.held[p]; ok && existing.handleID == h.id {
			delete(t.held, p)
		}
	}
}

// Holder returns the agent currently holding a path, if any.
func (t *Table) Holder(path string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.held[path]
	if !ok {
		return "", false
	}
	return h.agent, true
}

// HeldCount returns the number of currently locked paths.
func (t *Table) HeldCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.held)
}

// dedupe removes duplicate paths while preserving first-seen order.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
