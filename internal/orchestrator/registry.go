package orchestrator

import (
	"fmt"
	"sync"
)

// Registry holds the available sub-agents by name
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty agent registry
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent; registering a duplicate name is an error
func (r *Registry) Register(agent Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Name()
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	r.agents[name] = agent
	return nil
}

// Lookup returns the named agent
func (r *Registry) Lookup(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q not registered", name)
	}
	return agent, nil
}

// Names returns all registered agent names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// DefaultRegistry registers the built-in pipeline agents
func DefaultRegistry(completer Completer) *Registry {
	r := NewRegistry()
	_ = r.Register(NewPlannerAgent(completer))
	_ = r.Register(NewResearcherAgent(completer))
	_ = r.Register(NewSummarizerAgent(completer))
	return r
}
