package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fixflow/fixflow/internal/domain"
	"github.com/fixflow/fixflow/internal/guard"
)

// WorkItem is one agent execution inside a workflow.
type WorkItem struct {
	Agent    domain.AgentProfile
	Command  CommandID
	Paths    []string
	FilLevel domain.FilLevel
}

// workItem pairs a WorkItem with its submission index and resolved handler.
type workItem struct {
	spec    WorkItem
	index   int
	handler Handler
}

// Coordinator runs the agents of a named workflow sequentially or in
// parallel groups, admitting each through the guard and resolving conflicts
// by priority.
type Coordinator struct {
	Registry *Registry
	Guard    *guard.Guard

	// MaxRetries bounds re-admission attempts for recoverable rejections
	// (default 3). Backoff grows linearly per attempt (default 100ms base).
	MaxRetries int
	Backoff    time.Duration

	log *zap.Logger
}

// NewCoordinator creates a coordinator with default retry settings.
func NewCoordinator(registry *Registry, g *guard.Guard, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		Registry:   registry,
		Guard:      g,
		MaxRetries: 3,
		Backoff:    100 * time.Millisecond,
		log:        log,
	}
}

// Coordinate executes the work items of a workflow. Every handler is
// resolved up front, so an unknown agent/command pair rejects the whole
// workflow before any work starts.
func (c *Coordinator) Coordinate(ctx context.Context, workflowName string, items []WorkItem, mode domain.CoordinationMode) (domain.CoordinationResult, error) {
	result := domain.CoordinationResult{Workflow: workflowName, Mode: mode}

	resolved := make([]workItem, len(items))
	for i, spec := range items {
		h, err := c.Registry.Resolve(HandlerKey{Agent: AgentID(spec.Agent.Name), Command: spec.Command})
		if err != nil {
			return result, fmt.Errorf("workflow %s item %d (%s:%s): %w",
				workflowName, i, spec.Agent.Name, spec.Command, err)
		}
		resolved[i] = workItem{spec: spec, index: i, handler: h}
	}

	switch mode {
	case domain.ModeSequential:
		for _, item := range resolved {
			run := c.runWithRetry(ctx, workflowName, item, &result)
			result.Runs = append(result.Runs, run)
		}
	case domain.ModeParallel:
		for _, group := range halve(resolved) {
			c.runGroup(ctx, workflowName, group, &result)
		}
	default:
		return result, domain.NewEngineError(domain.ErrConfigInvalid.Code,
			fmt.Sprintf("unknown coordination mode: %s", mode))
	}

	return result, nil
}

// runGroup executes one parallel group. Items rejected with a recoverable
// error are requeued and re-run after the rest of the group completes, in
// priority order (ties broken by submission order), so the lower-priority
// requester waits for the higher-priority holder.
func (c *Coordinator) runGroup(ctx context.Context, workflowName string, group []workItem, result *domain.CoordinationResult) {
	var (
		mu       sync.Mutex
		done     []domain.AgentRun
		requeued []workItem
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, item := range group {
		item := item
		g.Go(func() error {
			err := c.execOnce(gctx, workflowName, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && recoverable(err) {
				if conflict, ok := classify(item, err); ok {
					result.Conflicts = append(result.Conflicts, conflict)
				}
				requeued = append(requeued, item)
				return nil
			}
			done = append(done, domain.AgentRun{
				Agent:   item.spec.Agent.Name,
				Command: string(item.spec.Command),
				Err:     err,
			})
			return nil
		})
	}
	_ = g.Wait()
	result.Runs = append(result.Runs, done...)

	sort.SliceStable(requeued, func(i, j int) bool {
		if requeued[i].spec.Agent.Priority != requeued[j].spec.Agent.Priority {
			return requeued[i].spec.Agent.Priority > requeued[j].spec.Agent.Priority
		}
		return requeued[i].index < requeued[j].index
	})
	for _, item := range requeued {
		run := c.runWithRetry(ctx, workflowName, item, result)
		run.Requeued = true
		result.Runs = append(result.Runs, run)
	}
}

// runWithRetry executes one item, retrying recoverable admission rejections
// with linear backoff until MaxRetries is exhausted.
func (c *Coordinator) runWithRetry(ctx context.Context, workflowName string, item workItem, result *domain.CoordinationResult) domain.AgentRun {
	run := domain.AgentRun{Agent: item.spec.Agent.Name, Command: string(item.spec.Command)}

	retries := c.MaxRetries
	if retries < 1 {
		retries = 1
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = c.execOnce(ctx, workflowName, item)
		if err == nil || !recoverable(err) {
			run.Err = err
			return run
		}
		if conflict, ok := classify(item, err); ok {
			result.Conflicts = append(result.Conflicts, conflict)
		}
		if attempt == retries {
			break
		}
		select {
		case <-ctx.Done():
			run.Err = ctx.Err()
			return run
		case <-time.After(time.Duration(attempt) * backoff):
		}
	}

	run.Err = domain.WrapEngineError(domain.ErrRetriesExhausted.Code,
		fmt.Sprintf("agent %s after %d attempts", item.spec.Agent.Name, retries), err)
	return run
}

// execOnce admits the item, invokes its handler, and releases the admission.
// A rejection leaves nothing to clean up; an admitted item releases exactly
// once on the way out.
func (c *Coordinator) execOnce(ctx context.Context, workflowName string, item workItem) error {
	task := domain.FixTask{
		ID:            fmt.Sprintf("%s-%s-%d", workflowName, item.spec.Agent.Name, item.index),
		AffectedPaths: item.spec.Paths,
		FilLevel:      item.spec.FilLevel,
		Agent:         item.spec.Agent,
	}

	adm, err := c.Guard.Admit(ctx, task)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := c.Guard.Release(adm); rerr != nil {
			c.log.Error("release admission", zap.String("task", task.ID), zap.Error(rerr))
		}
	}()

	return item.handler(ctx, Invocation{
		Workflow: workflowName,
		Agent:    item.spec.Agent.Name,
		Command:  string(item.spec.Command),
		Paths:    item.spec.Paths,
		FilLevel: item.spec.FilLevel,
	})
}

// halve splits items into at most two groups, preserving order.
func halve(items []workItem) [][]workItem {
	if len(items) < 2 {
		return [][]workItem{items}
	}
	mid := len(items) / 2
	return [][]workItem{items[:mid], items[mid:]}
}
