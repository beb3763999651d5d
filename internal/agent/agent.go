package agent

import (
	"context"
	"sort"
	"sync"
)

// Request is the payload handed to an agent for one task execution.
type Request struct {
	TaskID    string
	AgentName string
	AgentType string
	Attempt   int // 1-based, counts retries
	Input     map[string]any
}

// Agent executes one task payload. Implementations wrap whatever actually
// performs the work -- an LLM call, a local converter, a subprocess. The
// scheduler treats both the input and the returned result as opaque.
type Agent interface {
	Execute(ctx context.Context, req Request) (any, error)
}

// Registry maps agent types to implementations. The runner resolves each
// task's AgentType here at dispatch time.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register maps an agent type to an implementation, replacing any previous
// registration for that type.
func (r *Registry) Register(agentType string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentType] = a
}

// Get returns the agent registered for the type.
func (r *Registry) Get(agentType string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentType]
	return a, ok
}

// Types returns the registered agent types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for t := range r.agents {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
