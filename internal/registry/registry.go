// Package registry maps (agent, mode) pairs to invocable operations. An
// agent is a named group of related modes; a mode is one invocable operation
// with its own parameter schema. Operations are plain structs that hold their
// dependencies as explicit fields: composition, not inheritance.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrAgentNotFound indicates the requested agent is not registered.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrModeNotFound indicates the agent exists but the mode does not.
	ErrModeNotFound = errors.New("mode not found")
)

// Operation is one invocable unit of work.
type Operation interface {
	// Execute runs the operation with the enriched parameter bag and returns
	// a JSON-encodable result.
	Execute(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

	// ParameterSchema returns the operation's declared parameter schema,
	// before the common context fragment is merged in.
	ParameterSchema() map[string]interface{}
}

// Descriptor tags an operation with its registry coordinates.
type Descriptor struct {
	Agent       string
	Mode        string
	Description string
	Op          Operation
}

// FullName returns the fully-qualified tool name for this descriptor.
func (d Descriptor) FullName() string {
	return d.Agent + "_" + d.Mode
}

// Registry holds the fixed catalog of agents and their modes.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]map[string]Descriptor
	order  []string // agent registration order, for stable listings
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]map[string]Descriptor)}
}

// Register adds an operation under (agent, mode). Re-registering an existing
// pair is an error: the catalog is fixed at startup.
func (r *Registry) Register(agent, mode, description string, op Operation) error {
	if agent == "" || mode == "" {
		return fmt.Errorf("registry: agent and mode are required")
	}
	if op == nil {
		return fmt.Errorf("registry: operation for %s_%s is nil", agent, mode)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	modes, ok := r.agents[agent]
	if !ok {
		modes = make(map[string]Descriptor)
		r.agents[agent] = modes
		r.order = append(r.order, agent)
	}
	if _, exists := modes[mode]; exists {
		return fmt.Errorf("registry: %s_%s is already registered", agent, mode)
	}

	modes[mode] = Descriptor{Agent: agent, Mode: mode, Description: description, Op: op}
	return nil
}

// GetMode resolves (agent, mode) to its descriptor.
func (r *Registry) GetMode(agent, mode string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modes, ok := r.agents[agent]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agent)
	}
	d, ok := modes[mode]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s (agent %s)", ErrModeNotFound, mode, agent)
	}
	return d, nil
}

// HasAgent reports whether an agent is registered under exactly this name.
func (r *Registry) HasAgent(agent string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[agent]
	return ok
}

// SuggestAgent attempts a case-insensitive match for a misspelled agent name.
func (r *Registry) SuggestAgent(agent string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(agent)
	for name := range r.agents {
		if strings.ToLower(name) == lower {
			return name, true
		}
	}
	return "", false
}

// AgentNames returns all registered agent names, sorted.
func (r *Registry) AgentNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModeNames returns the mode names of one agent, sorted.
func (r *Registry) ModeNames(agent string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modes, ok := r.agents[agent]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns every registered descriptor in a stable order: agents
// in registration order, modes sorted within each agent. tools/list and help
// render from this.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Descriptor
	for _, agent := range r.order {
		modes := r.agents[agent]
		names := make([]string, 0, len(modes))
		for name := range modes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out = append(out, modes[name])
		}
	}
	return out
}

// SplitToolName splits a fully-qualified tool name at the LAST separator into
// (agentName, remainder). Agent names may themselves contain underscores; the
// mode never does.
func SplitToolName(full string) (agent, remainder string, ok bool) {
	idx := strings.LastIndex(full, "_")
	if idx <= 0 || idx == len(full)-1 {
		return "", "", false
	}
	return full[:idx], full[idx+1:], true
}
