package agent

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// ErrUnknownAgent is returned when a requested agent type is not registered.
var ErrUnknownAgent = errors.New("agent: unknown agent type") //nolint:gochecknoglobals // sentinel error

// EngineFactory creates an Engine for a given agent type. Engines are
// one-shot, so a fresh instance is created per conversation.
type EngineFactory func(runtime *DockerRuntime) (Engine, error)

// Registry manages engine factories by agent type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]EngineFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]EngineFactory),
	}
}

// Register adds an engine factory for an agent type.
func (r *Registry) Register(agentType string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[agentType] = factory
}

// Create instantiates an engine for the given agent type.
func (r *Registry) Create(agentType string, runtime *DockerRuntime) (Engine, error) {
	r.mu.RLock()
	factory, ok := r.factories[agentType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", agentType, ErrUnknownAgent)
	}

	engine, err := factory(runtime)
	if err != nil {
		return nil, fmt.Errorf("agent.Registry.Create(%q): %w", agentType, err)
	}

	return engine, nil
}

// Available returns registered agent type names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Collect(func(yield func(string) bool) {
		for name := range r.factories {
			if !yield(name) {
				return
			}
		}
	})
	sort.Strings(names)

	return names
}
