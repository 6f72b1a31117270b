package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixflow/fixflow/internal/collab"
	"github.com/fixflow/fixflow/internal/domain"
	"github.com/fixflow/fixflow/internal/run"
	"github.com/fixflow/fixflow/internal/store"
	"github.com/google/uuid"
)

// assessOut is the JSON document printed to stdout after an assessment run.
type assessOut struct {
	RunID      string       `json:"run_id"`
	Scope      string       `json:"scope"`
	Partitions int          `json:"partitions"`
	Failed     []failedPart `json:"failed,omitempty"`
	Findings   []findingOut `json:"findings"`
}

type failedPart struct {
	Partition string `json:"partition"`
	Error     string `json:"error"`
}

type findingOut struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

func newAssessCmd(opts *rootOpts) *cobra.Command {
	var (
		scope   string
		workers int
		agent   string
	)

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run a partitioned codebase assessment and print merged findings",
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

			partitioner := &run.Partitioner{
				Changes: &collab.GitChangeLister{Dir: a.cfg.Workspace},
			}
			runner := run.NewRunner(partitioner, a.log)
			runner.Limiter = a.limiter
			runner.Profile = profile

			scanner := &collab.Scanner{Root: a.cfg.Workspace}
			merged, err := runner.Run(cmd.Context(), scope, workers, scanner.Scan)
			if err != nil {
				return err
			}

			if err := persistFindings(cmd, a, merged); err != nil {
				a.log.Warn("persist findings", zap.Error(err))
			}

			out := assessOut{
				RunID:      merged.RunID,
				Scope:      scope,
				Partitions: len(merged.Partitions),
			}
			for _, p := range merged.Failed() {
				out.Failed = append(out.Failed, failedPart{
					Partition: p.Partition.ID,
					Error:     p.Err.Error(),
				})
			}
			for _, f := range merged.Findings {
				out.Findings = append(out.Findings, findingOut{
					Path:     f.Path,
					Type:     f.Type,
					Severity: f.Severity,
					Message:  f.Message,
				})
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "run %s: %d findings across %d partitions (%d failed)\n",
				merged.RunID, len(merged.Findings), len(merged.Partitions), len(merged.Failed()))

			if failed := merged.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d of %d partitions failed", len(failed), len(merged.Partitions))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", run.ScopeChanged, "assessment scope: full or changed")
	cmd.Flags().IntVar(&workers, "workers", 4, "maximum concurrent partitions")
	cmd.Flags().StringVar(&agent, "agent", "AUDITOR", "agent profile to run the assessment as")
	return cmd
}

func persistFindings(cmd *cobra.Command, a *app, merged domain.MergedResult) error {
	if len(merged.Findings) == 0 {
		return nil
	}
	now := time.Now().Unix()
	recs := make([]domain.FindingRecord, 0, len(merged.Findings))
	for _, f := range merged.Findings {
		recs = append(recs, domain.FindingRecord{
			ID:        "fnd-" + uuid.NewString(),
			RunID:     merged.RunID,
			Path:      f.Path,
			Type:      f.Type,
			Severity:  f.Severity,
			Message:   f.Message,
			CreatedAt: now,
		})
	}
	repo := &store.FindingRepo{}
	return repo.SaveRun(cmd.Context(), a.db, recs)
}
