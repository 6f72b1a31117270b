// Package coordinator sequences multiple agents through a named workflow and
// resolves the resource conflicts that show up when their path sets overlap.
package coordinator

import (
	"context"
	"sort"
	"sync"

	"github.com/fixflow/fixflow/internal/domain"
)

// AgentID identifies an agent class.
type AgentID string

// CommandID identifies one command an agent can execute.
type CommandID string

// HandlerKey is the typed (agent, command) pair handlers are registered
// under. Dispatch never falls through a string-matched default: unknown
// pairs are rejected before any work starts.
type HandlerKey struct {
	Agent   AgentID
	Command CommandID
}

// Invocation is the request passed to a handler.
type Invocation struct {
	Workflow string
	Agent    string
	Command  string
	Paths    []string
	FilLevel domain.FilLevel
}

// Handler executes one agent command. Its internals are out of scope for the
// coordinator; only the error matters here.
type Handler func(ctx context.Context, inv Invocation) error

// Registry is a thread-safe registry of agent command handlers, populated at
// startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[HandlerKey]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[HandlerKey]Handler)}
}

// Register adds a handler for an agent/command pair.
// Returns ErrDuplicateHandler if the pair is already registered.
func (r *Registry) Register(key HandlerKey, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		return domain.ErrDuplicateHandler
	}
	r.handlers[key] = h
	return nil
}

// Resolve returns the handler for the pair, or ErrUnknownHandler.
func (r *Registry) Resolve(key HandlerKey) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[key]
	if !ok {
		return nil, domain.ErrUnknownHandler
	}
	return h, nil
}

// List returns all registered keys sorted by agent then command.
func (r *Registry) List() []HandlerKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]HandlerKey, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Agent != keys[j].Agent {
			return keys[i].Agent < keys[j].Agent
		}
		return keys[i].Command < keys[j].Command
	})
	return keys
}
