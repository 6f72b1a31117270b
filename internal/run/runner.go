package run

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fixflow/fixflow/internal/domain"
	"github.com/fixflow/fixflow/internal/guard"
)

// AgentFunc executes one partition and returns its findings. Its internals
// (scan heuristics, report content) are out of scope for the runner.
type AgentFunc func(ctx context.Context, p domain.Partition) ([]domain.Finding, error)

// Runner fans an assessment out over partitions and fans the findings back
// in. A partition failure is captured in its own result record and never
// cancels siblings; the runner always waits for every started partition.
type Runner struct {
	Partitioner *Partitioner

	// Limiter and Profile, when set, route each partition execution through
	// admission control like any other unit of agent work.
	Limiter *guard.Limiter
	Profile domain.AgentProfile

	log *zap.Logger
}

// NewRunner creates a runner. A nil logger is replaced with a no-op.
func NewRunner(partitioner *Partitioner, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if partitioner == nil {
		partitioner = &Partitioner{}
	}
	return &Runner{Partitioner: partitioner, log: log}
}

// Run partitions the scope, executes at most maxWorkers partitions
// concurrently, and merges the findings. A scope yielding more partitions
// than maxWorkers is truncated, not queued: the runner carries no backlog.
func (r *Runner) Run(ctx context.Context, scope string, maxWorkers int, fn AgentFunc) (domain.MergedResult, error) {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	parts, err := r.Partitioner.Partition(ctx, scope)
	if err != nil {
		return domain.MergedResult{}, err
	}
	if len(parts) == 0 {
		return domain.MergedResult{}, domain.ErrNoPartitions
	}
	if len(parts) > maxWorkers {
		r.log.Warn("truncating partitions to worker bound",
			zap.Int("partitions", len(parts)),
			zap.Int("max_workers", maxWorkers))
		parts = parts[:maxWorkers]
	}

	var (
		mu    sync.Mutex
		order []domain.PartitionResult
	)
	record := func(res domain.PartitionResult) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, res)
	}

	// Goroutines never return an error to the group: failures are captured
	// per partition so one bad partition cannot cancel the rest.
	g, gctx := errgroup.WithContext(ctx)
	for _, part := range parts {
		part := part
		g.Go(func() error {
			record(r.runPartition(gctx, part, fn))
			return nil
		})
	}
	_ = g.Wait()

	merged := domain.MergedResult{
		RunID:      uuid.NewString(),
		Partitions: order,
		Findings:   Merge(order),
	}

	r.log.Info("assessment run merged",
		zap.String("run", merged.RunID),
		zap.String("scope", scope),
		zap.Int("partitions", len(order)),
		zap.Int("findings", len(merged.Findings)),
		zap.Int("failed", len(merged.Failed())))
	return merged, nil
}

// runPartition executes one partition, converting panics and errors into the
// partition's own result record.
func (r *Runner) runPartition(ctx context.Context, part domain.Partition, fn AgentFunc) (res domain.PartitionResult) {
	res.Partition = part

	defer func() {
		if rec := recover(); rec != nil {
			res.Err = &domain.PartitionError{
				PartitionID: part.ID,
				Cause:       fmt.Errorf("panic: %v", rec),
			}
		}
	}()

	var ticket *guard.Ticket
	if r.Limiter != nil {
		var err error
		ticket, err = r.Limiter.TryAdmit(r.Profile)
		if err != nil {
			res.Err = &domain.PartitionError{PartitionID: part.ID, Cause: err}
			return res
		}
		defer func() {
			if rerr := r.Limiter.Release(ticket); rerr != nil {
				r.log.Error("release partition ticket", zap.Error(rerr))
			}
		}()
	}

	findings, err := fn(ctx, part)
	if err != nil {
		res.Err = &domain.PartitionError{PartitionID: part.ID, Cause: err}
		return res
	}
	res.Findings = findings
	return res
}

// Merge concatenates findings in partition-completion order and deduplicates
// them by dedup key, first occurrence wins. Completion order is
// non-deterministic, so no duplicate is "newer" than another: any
// representative is acceptable, which makes the merge idempotent under
// re-ordering.
func Merge(results []domain.PartitionResult) []domain.Finding {
	seen := make(map[string]bool)
	var out []domain.Finding
	for _, res := range results {
		for _, f := range res.Findings {
			key := f.DedupKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, f)
		}
	}
	return out
}
