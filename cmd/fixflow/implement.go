package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fixflow/fixflow/internal/collab"
	"github.com/fixflow/fixflow/internal/domain"
	"github.com/fixflow/fixflow/internal/workflow"
)

// cycleOut is the JSON document printed to stdout after a fix cycle.
type cycleOut struct {
	TaskID        string   `json:"task_id"`
	Phase         string   `json:"phase"`
	FailureReason string   `json:"failure_reason,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

func newImplementCmd(opts *rootOpts) *cobra.Command {
	var (
		agent string
		fil   string
		paths []string
	)

	cmd := &cobra.Command{
		Use:   "implement <task-id>",
		Short: "Drive one fix task through the red/green/refactor cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			profile, err := a.cfg.Profile(agent)
			if err != nil {
				return fmt.Errorf("agent %q: %w", agent, err)
			}
			level, ok := domain.ParseFilLevel(fil)
			if !ok {
				return fmt.Errorf("unknown FIL level %q", fil)
			}
			if a.cfg.PhaseWorker.Command == "" {
				return errors.New("phase_worker.command is not configured")
			}
			if a.cfg.Coverage.Command == "" {
				return errors.New("coverage.command is not configured")
			}

			engine := workflow.NewEngine(
				a.guard,
				collab.NewExecTestRunner(a.cfg.TestRunner.Command, a.cfg.TestRunner.Args, a.cfg.Workspace, a.log),
				&collab.ExecCoverageChecker{
					Command: a.cfg.Coverage.Command,
					Args:    a.cfg.Coverage.Args,
					Dir:     a.cfg.Workspace,
				},
				a.db,
				a.log,
			)
			engine.CoverageThreshold = a.cfg.CoverageThreshold
			engine.MutationThreshold = a.cfg.MutationThreshold
			engine.RunTimeout = a.runTimeout()
			if a.cfg.Mutation.Command != "" {
				engine.Mutation = &collab.ExecMutationScorer{
					Command: a.cfg.Mutation.Command,
					Args:    a.cfg.Mutation.Args,
					Dir:     a.cfg.Workspace,
				}
			}

			worker := &collab.ExecPhaseWorker{
				Command: a.cfg.PhaseWorker.Command,
				Args:    a.cfg.PhaseWorker.Args,
				Dir:     a.cfg.Workspace,
			}

			task := &domain.FixTask{
				ID:            args[0],
				AffectedPaths: paths,
				FilLevel:      level,
				Agent:         profile,
			}

			result, runErr := engine.Execute(cmd.Context(), task, worker)

			out := cycleOut{
				TaskID:        result.TaskID,
				Phase:         string(result.Phase),
				FailureReason: result.FailureReason,
				Warnings:      result.Warnings,
			}
			if out.TaskID == "" {
				out.TaskID = args[0]
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}

			return runErr
		},
	}

	cmd.Flags().StringVar(&agent, "agent", "EXECUTOR", "agent profile to run the fix as")
	cmd.Flags().StringVar(&fil, "fil", "FIL-1", "FIL risk level of the change")
	cmd.Flags().StringSliceVar(&paths, "paths", nil, "paths the fix is declared to touch")
	return cmd
}
