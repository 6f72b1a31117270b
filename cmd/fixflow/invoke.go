package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fixflow/fixflow/internal/collab"
	"github.com/fixflow/fixflow/internal/coordinator"
	"github.com/fixflow/fixflow/internal/domain"
)

// coordOut is the JSON document printed to stdout after a coordinated run.
type coordOut struct {
	Workflow  string        `json:"workflow"`
	Mode      string        `json:"mode"`
	Runs      []runOut      `json:"runs"`
	Conflicts []conflictOut `json:"conflicts,omitempty"`
}

type runOut struct {
	Agent    string `json:"agent"`
	Command  string `json:"command"`
	Error    string `json:"error,omitempty"`
	Requeued bool   `json:"requeued,omitempty"`
}

type conflictOut struct {
	Kind       string `json:"kind"`
	Path       string `json:"path,omitempty"`
	Winner     string `json:"winner,omitempty"`
	Loser      string `json:"loser,omitempty"`
	Resolution string `json:"resolution"`
}

func newInvokeCmd(opts *rootOpts) *cobra.Command {
	var (
		paths    []string
		fil      string
		wfName   string
		modeName string
	)

	cmd := &cobra.Command{
		Use:   "invoke <AGENT:COMMAND> [AGENT:COMMAND...]",
		Short: "Coordinate one or more agent commands as a workflow",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			level, ok := domain.ParseFilLevel(fil)
			if !ok {
				return fmt.Errorf("unknown FIL level %q", fil)
			}

			mode := domain.CoordinationMode(modeName)
			switch mode {
			case domain.ModeSequential, domain.ModeParallel:
			default:
				return fmt.Errorf("unknown mode %q: use sequential or parallel", modeName)
			}

			registry := coordinator.NewRegistry()
			if err := registerBuiltins(registry, a); err != nil {
				return err
			}

			var items []coordinator.WorkItem
			for _, arg := range args {
				agentName, command, ok := strings.Cut(arg, ":")
				if !ok || agentName == "" || command == "" {
					return fmt.Errorf("invalid work item %q: want AGENT:COMMAND", arg)
				}
				profile, err := a.cfg.Profile(agentName)
				if err != nil {
					return fmt.Errorf("agent %q: %w", agentName, err)
				}
				items = append(items, coordinator.WorkItem{
					Agent:    profile,
					Command:  coordinator.CommandID(command),
					Paths:    paths,
					FilLevel: level,
				})
			}

			coord := coordinator.NewCoordinator(registry, a.guard, a.log)
			coord.MaxRetries = a.cfg.MaxRetries
			coord.Backoff = time.Duration(a.cfg.BackoffMs) * time.Millisecond

			result, err := coord.Coordinate(cmd.Context(), wfName, items, mode)
			if err != nil {
				return err
			}

			out := coordOut{Workflow: result.Workflow, Mode: string(result.Mode)}
			for _, r := range result.Runs {
				ro := runOut{Agent: r.Agent, Command: r.Command, Requeued: r.Requeued}
				if r.Err != nil {
					ro.Error = r.Err.Error()
				}
				out.Runs = append(out.Runs, ro)
			}
			for _, c := range result.Conflicts {
				out.Conflicts = append(out.Conflicts, conflictOut{
					Kind:       string(c.Kind),
					Path:       c.Path,
					Winner:     c.Winner,
					Loser:      c.Loser,
					Resolution: c.Resolution,
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}

			if failed := result.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d runs failed", len(failed), len(result.Runs))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&paths, "paths", nil, "paths each work item is declared to touch")
	cmd.Flags().StringVar(&fil, "fil", "FIL-1", "FIL risk level of the work")
	cmd.Flags().StringVar(&wfName, "workflow", "adhoc", "workflow name used in task ids and logs")
	cmd.Flags().StringVar(&modeName, "mode", string(domain.ModeSequential), "coordination mode: sequential or parallel")
	return cmd
}

// registerBuiltins registers a "scan" and a "test" command for every
// configured agent. Custom agent binaries go through implement; invoke covers
// the built-in assessment and verification commands.
func registerBuiltins(registry *coordinator.Registry, a *app) error {
	scanner := &collab.Scanner{Root: a.cfg.Workspace}
	testRunner := collab.NewExecTestRunner(
		a.cfg.TestRunner.Command, a.cfg.TestRunner.Args, a.cfg.Workspace, a.log)

	for name := range a.cfg.Agents {
		agent := coordinator.AgentID(name)

		scan := func(ctx context.Context, inv coordinator.Invocation) error {
			_, err := scanner.Scan(ctx, domain.Partition{
				ID:    inv.Workflow + ":" + inv.Agent,
				Paths: inv.Paths,
				Type:  domain.PartitionDiff,
			})
			return err
		}
		if err := registry.Register(coordinator.HandlerKey{Agent: agent, Command: "scan"}, scan); err != nil {
			return err
		}

		test := func(ctx context.Context, inv coordinator.Invocation) error {
			res, err := testRunner.Run(ctx, inv.Paths)
			if err != nil {
				return err
			}
			if !res.Passed {
				return fmt.Errorf("test suite failed for %s", inv.Agent)
			}
			return nil
		}
		if err := registry.Register(coordinator.HandlerKey{Agent: agent, Command: "test"}, test); err != nil {
			return err
		}
	}
	return nil
}
