// Package run implements the fan-out/fan-in executor that splits an
// assessment scope into independent partitions, runs them concurrently, and
// deterministically merges their findings.
package run

import (
	"context"
	"fmt"

	"github.com/fixflow/fixflow/internal/domain"
)

// Scope names accepted by the runner.
const (
	ScopeFull    = "full"
	ScopeChanged = "changed"
)

// ChangeLister reports the paths touched by the current version-control
// diff. Git plumbing is an external collaborator; only the path list crosses
// this boundary.
type ChangeLister interface {
	ChangedPaths(ctx context.Context) ([]string, error)
}

// fullTrees are the coarse partitions of a full-repository scan.
var fullTrees = []struct {
	name string
	typ  domain.PartitionType
	path string
}{
	{"source", domain.PartitionSource, "src"},
	{"library", domain.PartitionLibrary, "lib"},
	{"test", domain.PartitionTest, "test"},
}

// Partitioner builds the partition set for a scope.
type Partitioner struct {
	Changes ChangeLister
}

// Partition expands a scope into its partition set. Unknown scopes are
// rejected statically rather than falling through to a default.
func (p *Partitioner) Partition(ctx context.Context, scope string) ([]domain.Partition, error) {
	switch scope {
	case ScopeFull:
		parts := make([]domain.Partition, 0, len(fullTrees))
		for _, t := range fullTrees {
			parts = append(parts, domain.Partition{
				ID:    fmt.Sprintf("%s-%s", scope, t.name),
				Type:  t.typ,
				Paths: []string{t.path},
			})
		}
		return parts, nil
	case ScopeChanged:
		var paths []string
		if p.Changes != nil {
			var err error
			paths, err = p.Changes.ChangedPaths(ctx)
			if err != nil {
				return nil, fmt.Errorf("list changed paths: %w", err)
			}
		}
		return []domain.Partition{{
			ID:    "changed-diff",
			Type:  domain.PartitionDiff,
			Paths: paths,
		}}, nil
	default:
		return nil, domain.ErrUnknownScope
	}
}
