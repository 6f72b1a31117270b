// Package guard implements admission control for agent work: FIL policy
// gating, per-agent concurrency limiting, and the composed admit path that
// reserves locks for a fix task.
package guard

import "github.com/fixflow/fixflow/internal/domain"

// CheckPolicy evaluates an agent's FIL policy against a task's risk level.
// It returns nil when the level is allowed, or a FilBlockedError.
//
// The decision order matters: an explicit block always wins, then a
// non-empty allow list restricts to its members. An empty allow list means
// "no explicit restriction", not "block everything".
//
// The check is pure and safe to call speculatively before any admission
// or locking is attempted.
func CheckPolicy(profile domain.AgentProfile, level domain.FilLevel) error {
	for _, blocked := range profile.FilPolicy.Block {
		if blocked == level {
			return &domain.FilBlockedError{
				Agent:  profile.Name,
				Level:  level,
				Reason: "level is explicitly blocked",
			}
		}
	}

	if len(profile.FilPolicy.Allow) == 0 {
		return nil
	}
	for _, allowed := range profile.FilPolicy.Allow {
		if allowed == level {
			return nil
		}
	}
	return &domain.FilBlockedError{
		Agent:  profile.Name,
		Level:  level,
		Reason: "level is not in the allow list",
	}
}
