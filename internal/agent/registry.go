package agent

import (
	"fmt"

	"showrunner/pkg/llm"
)

// Registry holds the agents available to the reasoning engine. It is
// assembled once at startup and passed by reference; registration problems
// are configuration errors and fail immediately.
type Registry struct {
	order  []string
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds agents, rejecting duplicate names and missing or
// non-object parameter schemas.
func (r *Registry) Register(agents ...Agent) error {
	for _, a := range agents {
		name := a.Name()
		if name == "" {
			return fmt.Errorf("agent has empty name")
		}
		if _, exists := r.agents[name]; exists {
			return fmt.Errorf("agent %q registered twice", name)
		}
		schema := a.Parameters()
		if len(schema) == 0 {
			return fmt.Errorf("agent %q has an empty parameter schema", name)
		}
		if schemaType, _ := schema["type"].(string); schemaType != "object" {
			return fmt.Errorf("agent %q parameter schema must be an object schema", name)
		}
		r.agents[name] = a
		r.order = append(r.order, name)
	}
	return nil
}

// Get returns the agent with the given name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// List returns all agents in registration order.
func (r *Registry) List() []Agent {
	out := make([]Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// Subset returns the named agents in registration order. Unknown names are
// an error: a request selecting a nonexistent agent is malformed.
func (r *Registry) Subset(names []string) ([]Agent, error) {
	if len(names) == 0 {
		return r.List(), nil
	}
	selected := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.agents[name]; !ok {
			return nil, fmt.Errorf("unknown agent %q", name)
		}
		selected[name] = true
	}
	out := make([]Agent, 0, len(selected))
	for _, name := range r.order {
		if selected[name] {
			out = append(out, r.agents[name])
		}
	}
	return out, nil
}

// Descriptors converts agents into model tool descriptors.
func Descriptors(agents []Agent) []llm.Tool {
	out := make([]llm.Tool, 0, len(agents))
	for _, a := range agents {
		out = append(out, llm.Tool{
			Name:        a.Name(),
			Description: a.Description(),
			Parameters:  a.Parameters(),
		})
	}
	return out
}
