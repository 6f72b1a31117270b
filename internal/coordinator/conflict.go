package coordinator

import (
	"errors"

	"github.com/fixflow/fixflow/internal/domain"
)

// Overlap returns the first path present in both sets.
func Overlap(a, b []string) (string, bool) {
	set := make(map[string]bool, len(a))
	for _, p := range a {
		set[p] = true
	}
	for _, p := range b {
		if set[p] {
			return p, true
		}
	}
	return "", false
}

// classify maps an admission error to the coordination conflict it
// represents, if any. Lock conflicts are resource conflicts; concurrency
// exhaustion is a task conflict (too much of one agent class in flight).
func classify(item workItem, err error) (domain.CoordinationConflict, bool) {
	var lc *domain.LockConflictError
	if errors.As(err, &lc) {
		return domain.CoordinationConflict{
			Kind:       domain.ConflictResource,
			Path:       lc.Path,
			Winner:     lc.Holder,
			Loser:      item.spec.Agent.Name,
			Resolution: "requeued after holder completes",
		}, true
	}

	var ce *domain.ConcurrencyExceededError
	if errors.As(err, &ce) {
		return domain.CoordinationConflict{
			Kind:       domain.ConflictTask,
			Winner:     "",
			Loser:      ce.Agent,
			Resolution: "retried after backoff",
		}, true
	}

	return domain.CoordinationConflict{}, false
}

// recoverable reports whether an admission error may succeed on retry.
// FIL blocks are deliberately excluded: the check is pure, so retrying
// cannot change the outcome.
func recoverable(err error) bool {
	var lc *domain.LockConflictError
	var ce *domain.ConcurrencyExceededError
	return errors.As(err, &lc) || errors.As(err, &ce)
}
