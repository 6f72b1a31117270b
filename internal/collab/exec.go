// Package collab holds the engine's external collaborators: the test runner,
// coverage checker, and change lister consumed through the narrow interfaces
// the orchestration core defines. Each implementation shells out to a
// configured command; the core only ever sees the structured result.
package collab

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fixflow/fixflow/internal/domain"
)

// ExecTestRunner invokes a configured test command. The affected paths are
// appended to the argument list; exit code 0 means the suite passed.
type ExecTestRunner struct {
	Command string
	Args    []string
	Dir     string
	log     *zap.Logger
}

// NewExecTestRunner creates a runner for the given command line.
func NewExecTestRunner(command string, args []string, dir string, log *zap.Logger) *ExecTestRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecTestRunner{Command: command, Args: args, Dir: dir, log: log}
}

// Run executes the test command for the given paths. A non-zero exit is a
// failing run, not an error; errors are reserved for the command not running
// at all or the context expiring.
func (r *ExecTestRunner) Run(ctx context.Context, paths []string) (domain.TestResult, error) {
	args := append(append([]string{}, r.Args...), paths...)
	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.Dir = r.Dir

	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return domain.TestResult{}, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.log.Debug("test run failed",
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.Strings("paths", paths))
			return domain.TestResult{Passed: false, Output: string(out)}, nil
		}
		return domain.TestResult{}, fmt.Errorf("run tests: %w", err)
	}
	return domain.TestResult{Passed: true, Output: string(out)}, nil
}

// ExecCoverageChecker invokes a configured coverage command and parses a
// single 0-100 percentage from the last non-empty line of its output.
type ExecCoverageChecker struct {
	Command string
	Args    []string
	Dir     string
}

// DiffCoverage reports diff coverage over the given paths.
func (c *ExecCoverageChecker) DiffCoverage(ctx context.Context, paths []string) (float64, error) {
	args := append(append([]string{}, c.Args...), paths...)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Dir = c.Dir

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("run coverage: %w", err)
	}
	return parsePercentage(string(out))
}

// parsePercentage extracts the trailing percentage from command output,
// accepting forms like "83.4" and "83.4%".
func parsePercentage(out string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		raw := strings.TrimSuffix(fields[len(fields)-1], "%")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("parse coverage output %q: %w", line, err)
		}
		if v < 0 || v > 100 {
			return 0, fmt.Errorf("coverage %v out of range", v)
		}
		return v, nil
	}
	return 0, fmt.Errorf("empty coverage output")
}

// GitChangeLister reports the paths of the working tree diff. Git itself is
// an external collaborator; only the path list crosses into the core.
type GitChangeLister struct {
	Dir string
}

// ChangedPaths lists files touched relative to HEAD.
func (g *GitChangeLister) ChangedPaths(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "HEAD")
	cmd.Dir = g.Dir

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
