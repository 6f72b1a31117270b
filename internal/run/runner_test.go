package run

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fixflow/fixflow/internal/domain"
	"github.com/fixflow/fixflow/internal/guard"
)

func TestRunMergesAllPartitions(t *testing.T) {
	runner := NewRunner(&Partitioner{}, nil)

	var mu sync.Mutex
	seen := map[string]bool{}
	fn := func(ctx context.Context, p domain.Partition) ([]domain.Finding, error) {
		mu.Lock()
		seen[p.ID] = true
		mu.Unlock()
		return []domain.Finding{{Path: p.Paths[0], Type: "marker-comment"}}, nil
	}

	merged, err := runner.Run(context.Background(), ScopeFull, 4, fn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if merged.RunID == "" {
		t.Error("merged result missing run id")
	}
	if len(seen) != 3 {
		t.Errorf("executed %d partitions, want 3", len(seen))
	}
	if len(merged.Findings) != 3 {
		t.Errorf("findings = %d, want 3", len(merged.Findings))
	}
	if len(merged.Failed()) != 0 {
		t.Errorf("failed partitions = %v, want none", merged.Failed())
	}
}

func TestRunTruncatesToWorkerBound(t *testing.T) {
	runner := NewRunner(&Partitioner{}, nil)

	var mu sync.Mutex
	var executed int
	fn := func(ctx context.Context, p domain.Partition) ([]domain.Finding, error) {
		mu.Lock()
		executed++
		mu.Unlock()
		return nil, nil
	}

	merged, err := runner.Run(context.Background(), ScopeFull, 2, fn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Three full-scope partitions against two workers: the surplus is
	// dropped, not queued.
	if executed != 2 {
		t.Errorf("executed = %d, want 2", executed)
	}
	if len(merged.Partitions) != 2 {
		t.Errorf("partition results = %d, want 2", len(merged.Partitions))
	}
}

func TestRunDoesNotFailFast(t *testing.T) {
	runner := NewRunner(&Partitioner{}, nil)
	boom := errors.New("scanner crashed")

	fn := func(ctx context.Context, p domain.Partition) ([]domain.Finding, error) {
		if p.Type == domain.PartitionLibrary {
			return nil, boom
		}
		return []domain.Finding{{Path: p.Paths[0], Type: "large-file"}}, nil
	}

	merged, err := runner.Run(context.Background(), ScopeFull, 4, fn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	failed := merged.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed partitions = %d, want 1", len(failed))
	}
	var perr *domain.PartitionError
	if !errors.As(failed[0].Err, &perr) {
		t.Fatalf("error type = %T, want PartitionError", failed[0].Err)
	}
	if !errors.Is(perr, boom) {
		t.Errorf("partition error does not wrap the cause: %v", perr)
	}
	// The two healthy partitions still contributed findings.
	if len(merged.Findings) != 2 {
		t.Errorf("findings = %d, want 2", len(merged.Findings))
	}
}

func TestRunRecoversPanics(t *testing.T) {
	runner := NewRunner(&Partitioner{}, nil)

	fn := func(ctx context.Context, p domain.Partition) ([]domain.Finding, error) {
		if p.Type == domain.PartitionTest {
			panic("scanner bug")
		}
		return nil, nil
	}

	merged, err := runner.Run(context.Background(), ScopeFull, 4, fn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(merged.Failed()) != 1 {
		t.Errorf("failed partitions = %d, want 1", len(merged.Failed()))
	}
}

func TestRunRejectsUnknownScope(t *testing.T) {
	runner := NewRunner(&Partitioner{}, nil)

	fn := func(ctx context.Context, p domain.Partition) ([]domain.Finding, error) {
		t.Error("agent ran for an unknown scope")
		return nil, nil
	}
	if _, err := runner.Run(context.Background(), "everything", 4, fn); !errors.Is(err, domain.ErrUnknownScope) {
		t.Errorf("Run = %v, want ErrUnknownScope", err)
	}
}

func TestRunRoutesThroughLimiter(t *testing.T) {
	runner := NewRunner(&Partitioner{}, nil)
	runner.Limiter = guard.NewLimiter(nil)
	runner.Profile = domain.AgentProfile{Name: "AUDITOR", MaxParallel: 3}

	fn := func(ctx context.Context, p domain.Partition) ([]domain.Finding, error) {
		return nil, nil
	}

	merged, err := runner.Run(context.Background(), ScopeFull, 3, fn)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(merged.Failed()) != 0 {
		t.Errorf("failed partitions = %v, want none", merged.Failed())
	}
	if got := runner.Limiter.InFlight("AUDITOR"); got != 0 {
		t.Errorf("InFlight after run = %d, want 0", got)
	}
}

func TestMergeDeduplicatesFirstWins(t *testing.T) {
	results := []domain.PartitionResult{
		{Findings: []domain.Finding{
			{Path: "a.go", Type: "marker-comment", Message: "from source"},
			{Path: "b.go", Type: "long-line"},
		}},
		{Findings: []domain.Finding{
			{Path: "a.go", Type: "marker-comment", Message: "from diff"},
			{Path: "a.go", Type: "long-line"},
		}},
	}

	merged := Merge(results)
	if len(merged) != 3 {
		t.Fatalf("merged = %d findings, want 3", len(merged))
	}
	for _, f := range merged {
		if f.Path == "a.go" && f.Type == "marker-comment" && f.Message != "from source" {
			t.Errorf("dedup kept %q, want the first occurrence", f.Message)
		}
	}
}

func TestMergeIgnoresOrderOfDuplicates(t *testing.T) {
	a := domain.PartitionResult{Findings: []domain.Finding{{Path: "x.go", Type: "large-file"}}}
	b := domain.PartitionResult{Findings: []domain.Finding{{Path: "x.go", Type: "large-file"}}}

	if got := len(Merge([]domain.PartitionResult{a, b})); got != 1 {
		t.Errorf("merged = %d, want 1", got)
	}
	if got := len(Merge([]domain.PartitionResult{b, a})); got != 1 {
		t.Errorf("merged reversed = %d, want 1", got)
	}
}
