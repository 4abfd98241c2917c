package toolkit

import (
	"context"
	"fmt"
	"sync"
)

// Registry keeps the mapping between tool names and implementations
// available globally for the lifetime of a process.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	validator Validator
}

// NewRegistry creates a registry backed by the JSON-Schema validator.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		validator: NewSchemaValidator(),
	}
}

// Register inserts a tool when its name is not in use.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("toolkit: tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("toolkit: tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("toolkit: tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Unregister removes name from the registry, if present. It is a no-op
// when name was never registered, so callers scoping a tool's lifetime to
// one call can unconditionally defer it.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get fetches a globally registered tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, fmt.Errorf("toolkit: tool %s not found", name)
	}
	return tool, nil
}

// List produces a snapshot of all globally registered tools.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// SetValidator swaps the validator instance used before execution.
func (r *Registry) SetValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validator = v
}

// Resolve looks a tool up by name, preferring an extras slice (per-call
// tools such as a turn's sub-completion guardrail tools or a session's
// interpreter-bound tools) over the globally registered set. Extras are
// searched in order; the first name match wins, so a caller can shadow a
// global tool by listing a same-named extra ahead of the fallback.
func (r *Registry) Resolve(extras []Tool, name string) (Tool, bool) {
	for _, t := range extras {
		if t != nil && t.Name() == name {
			return t, true
		}
	}
	tool, err := r.Get(name)
	if err != nil {
		return nil, false
	}
	return tool, true
}

// Execute validates params against the resolved tool's schema (extras take
// priority over the global registry, see Resolve) and invokes it.
func (r *Registry) Execute(ctx context.Context, extras []Tool, name string, params map[string]interface{}) (*ToolResult, error) {
	tool, ok := r.Resolve(extras, name)
	if !ok {
		return nil, fmt.Errorf("toolkit: tool %s not found", name)
	}

	if schema := tool.Schema(); schema != nil {
		r.mu.RLock()
		validator := r.validator
		r.mu.RUnlock()

		if validator != nil {
			if err := validator.Validate(params, schema); err != nil {
				return nil, fmt.Errorf("toolkit: tool %s validation failed: %w", name, err)
			}
		}
	}

	return tool.Execute(ctx, params)
}
