package guard

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fixflow/fixflow/internal/domain"
)

// Ticket represents one admitted unit of work for an agent. It must be
// released exactly once.
type Ticket struct {
	id    string
	agent string
}

// Agent returns the agent name the ticket was issued for.
func (t *Ticket) Agent() string { return t.agent }

// Limiter caps how much work each agent class can have in flight.
// The count check and increment are a single atomic step.
type Limiter struct {
	mu     sync.Mutex
	counts map[string]int
	issued map[string]string
	log    *zap.Logger
}

// NewLimiter creates an empty limiter. A nil logger is replaced with a no-op.
func NewLimiter(log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		counts: make(map[string]int),
		issued: make(map[string]string),
		log:    log,
	}
}

// TryAdmit admits one unit of work for the agent if its in-flight count is
// strictly below MaxParallel, incrementing the count atomically with the
// check. Agents with MaxParallel <= 0 are unlimited: a ticket is still
// issued so release bookkeeping stays uniform, but no bound is enforced.
// TryAdmit never blocks; saturation fails fast with ConcurrencyExceededError.
func (l *Limiter) TryAdmit(profile domain.AgentProfile) (*Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if profile.MaxParallel > 0 && l.counts[profile.Name] >= profile.MaxParallel {
		l.log.Debug("admission rejected",
			zap.String("agent", profile.Name),
			zap.Int("max_parallel", profile.MaxParallel))
		return nil, &domain.ConcurrencyExceededError{Agent: profile.Name, Max: profile.MaxParallel}
	}

	t := &Ticket{id: uuid.NewString(), agent: profile.Name}
	l.counts[profile.Name]++
	l.issued[t.id] = profile.Name
	return t, nil
}

// Release returns a ticket's slot. Unlike lock release this is NOT
// idempotent: releasing a ticket twice would corrupt the counter, so a
// second release is rejected with ErrTicketReleased.
func (l *Limiter) Release(t *Ticket) error {
	if t == nil {
		return domain.ErrTicketUnknown
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.issued[t.id]; !ok {
		return domain.ErrTicketReleased
	}
	delete(l.issued, t.id)

	if l.counts[t.agent] > 0 {
		l.counts[t.agent]--
	}
	return nil
}

// InFlight returns the current count for an agent.
func (l *Limiter) InFlight(agent string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[agent]
}
