package workflow

import (
	"fmt"

	"github.com/fixflow/fixflow/internal/domain"
)

// BudgetAction is the decision from the change-size budget.
type BudgetAction string

const (
	BudgetContinue BudgetAction = "continue"
	BudgetWarn     BudgetAction = "warn"
	BudgetHalt     BudgetAction = "halt"
)

// ChangeBudget enforces the per-agent changed-lines limit on a Green-phase
// fix. A change near the limit produces a warning; a change over it halts
// the cycle.
type ChangeBudget struct {
	// WarnRatio is the fraction of the limit at which a warning is issued
	// (default 0.8).
	WarnRatio float64
}

// NewChangeBudget creates a budget with the standard warn threshold.
func NewChangeBudget() ChangeBudget {
	return ChangeBudget{WarnRatio: 0.8}
}

// Evaluate compares a change's total lines against the limit.
// A non-positive limit disables the budget.
func (b ChangeBudget) Evaluate(stats domain.ChangeStats, maxLines int) BudgetAction {
	if maxLines <= 0 {
		return BudgetContinue
	}
	total := stats.Total()
	if total > maxLines {
		return BudgetHalt
	}
	ratio := b.WarnRatio
	if ratio <= 0 {
		ratio = 0.8
	}
	if float64(total) >= ratio*float64(maxLines) {
		return BudgetWarn
	}
	return BudgetContinue
}

// WarnMessage formats the advisory attached to a near-budget change.
func (b ChangeBudget) WarnMessage(stats domain.ChangeStats, maxLines int) string {
	return fmt.Sprintf("change size %d lines is near the %d line budget", stats.Total(), maxLines)
}
