package guard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fixflow/fixflow/internal/domain"
	"github.com/fixflow/fixflow/internal/lock"
	"github.com/fixflow/fixflow/internal/store"
)

// Admission is the pair of resources a fix task holds while it runs.
// Agents with LockScope "none" carry a nil Handle.
type Admission struct {
	Ticket *Ticket
	Handle *lock.Handle
}

// Guard runs the admission sequence for a fix task: FIL policy, then
// concurrency slot, then path locks. A failure at any step undoes the
// earlier steps, so a rejected task never holds anything.
type Guard struct {
	Locks     *lock.Table
	Limiter   *Limiter
	AuditRepo *store.AuditRepo
	DB        *sql.DB
	log       *zap.Logger
}

// NewGuard creates a Guard. The audit repo and db may be nil, in which case
// rejections are not persisted. A nil logger is replaced with a no-op.
func NewGuard(locks *lock.Table, limiter *Limiter, auditRepo *store.AuditRepo, db *sql.DB, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		Locks:     locks,
		Limiter:   limiter,
		AuditRepo: auditRepo,
		DB:        db,
		log:       log,
	}
}

// Admit runs the checks in order and returns the task's admission, or the
// first rejection. Rejections are synchronous and leave no state behind.
func (g *Guard) Admit(ctx context.Context, task domain.FixTask) (*Admission, error) {
	if err := CheckPolicy(task.Agent, task.FilLevel); err != nil {
		// Terminal for this request. The audit marker lets a human or
		// higher-privilege agent pick the task up (see DESIGN.md).
		g.audit(ctx, task.ID, "fil", "fil_blocked",
			fmt.Sprintf(`{"agent":%q,"fil_level":%q}`, task.Agent.Name, task.FilLevel),
			`{"escalation_required":true}`, "warning")
		return nil, err
	}

	ticket, err := g.Limiter.TryAdmit(task.Agent)
	if err != nil {
		g.audit(ctx, task.ID, "concurrency", "admission_rejected",
			fmt.Sprintf(`{"agent":%q}`, task.Agent.Name), "{}", "info")
		return nil, err
	}

	adm := &Admission{Ticket: ticket}
	if task.Agent.LockScope == domain.LockDeclared {
		handle, err := g.Locks.Acquire(task.Agent.Name, task.AffectedPaths)
		if err != nil {
			if rerr := g.Limiter.Release(ticket); rerr != nil {
				g.log.Error("release ticket after lock conflict", zap.Error(rerr))
			}
			g.audit(ctx, task.ID, "lock", "lock_conflict",
				fmt.Sprintf(`{"agent":%q}`, task.Agent.Name),
				fmt.Sprintf(`{"error":%q}`, err.Error()), "info")
			return nil, err
		}
		adm.Handle = handle
	}

	g.log.Debug("task admitted",
		zap.String("task", task.ID),
		zap.String("agent", task.Agent.Name))
	return adm, nil
}

// Release returns everything the admission holds. Lock release is idempotent;
// the ticket is returned exactly once and a second call reports the
// limiter's double-release error.
func (g *Guard) Release(adm *Admission) error {
	if adm == nil {
		return nil
	}
	g.Locks.Release(adm.Handle)
	return g.Limiter.Release(adm.Ticket)
}

func (g *Guard) audit(ctx context.Context, taskID, category, action, request, decision, severity string) {
	if g.AuditRepo == nil || g.DB == nil {
		return
	}
	_ = g.AuditRepo.Record(ctx, g.DB, domain.AuditRecord{
		ID:           "aud-" + uuid.NewString(),
		TaskID:       taskID,
		Category:     category,
		Actor:        "system",
		Action:       action,
		RequestJSON:  request,
		DecisionJSON: decision,
		Severity:     severity,
		CreatedAt:    time.Now().Unix(),
	})
}
