package collab

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fixflow/fixflow/internal/domain"
)

// ExecPhaseWorker drives each TDD phase by invoking a configured command as
// `command [args...] <phase> <task-id> <paths...>`. The command is the
// actual fix agent; the engine only needs its exit status and, for the green
// phase, the resulting change size.
type ExecPhaseWorker struct {
	Command string
	Args    []string
	Dir     string
}

// AuthorTest asks the agent to author or locate a failing test.
func (w *ExecPhaseWorker) AuthorTest(ctx context.Context, task *domain.FixTask) error {
	return w.invoke(ctx, "red", task)
}

// ApplyFix asks the agent for the minimal implementation change and measures
// the change size from the working tree diff.
func (w *ExecPhaseWorker) ApplyFix(ctx context.Context, task *domain.FixTask) (domain.ChangeStats, error) {
	if err := w.invoke(ctx, "green", task); err != nil {
		return domain.ChangeStats{}, err
	}
	return diffStats(ctx, w.Dir)
}

// Refactor asks the agent for behavior-preserving cleanup.
func (w *ExecPhaseWorker) Refactor(ctx context.Context, task *domain.FixTask) error {
	return w.invoke(ctx, "refactor", task)
}

func (w *ExecPhaseWorker) invoke(ctx context.Context, phase string, task *domain.FixTask) error {
	args := append(append([]string{}, w.Args...), phase, task.ID)
	args = append(args, task.AffectedPaths...)
	cmd := exec.CommandContext(ctx, w.Command, args...)
	cmd.Dir = w.Dir

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("phase worker %s: %w: %s", phase, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// diffStats sums added and deleted lines from `git diff --numstat`.
func diffStats(ctx context.Context, dir string) (domain.ChangeStats, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--numstat", "HEAD")
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		return domain.ChangeStats{}, fmt.Errorf("git diff --numstat: %w", err)
	}

	var stats domain.ChangeStats
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		// Binary files report "-" for both counts.
		if added, err := strconv.Atoi(fields[0]); err == nil {
			stats.LinesAdded += added
		}
		if deleted, err := strconv.Atoi(fields[1]); err == nil {
			stats.LinesDeleted += deleted
		}
	}
	return stats, nil
}

// ExecMutationScorer invokes a configured mutation-testing command and
// parses a 0-100 score from its output.
type ExecMutationScorer struct {
	Command string
	Args    []string
	Dir     string
}

// MutationScore reports the mutation score over the given paths.
func (m *ExecMutationScorer) MutationScore(ctx context.Context, paths []string) (float64, error) {
	args := append(append([]string{}, m.Args...), paths...)
	cmd := exec.CommandContext(ctx, m.Command, args...)
	cmd.Dir = m.Dir

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("run mutation scorer: %w", err)
	}
	return parsePercentage(string(out))
}
