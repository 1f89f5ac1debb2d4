// Package tools provides the tool registry and execution framework.
package tools

import (
	"context"

	"github.com/quillhq/quill-agent/internal/protocol"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string
	Description string
	// Args describes the tool's argument contract for prompt rendering.
	Args []protocol.ArgInfo
	// ExampleArgs, when set, renders a worked example in the system
	// prompt. Set it on tools whose argument contract models tend to
	// get wrong.
	ExampleArgs string
	// Handler executes the tool. It may return any value (the guard
	// serializes non-strings) or an error. Handlers must be safe to
	// abandon: a handler that outlives the guard's deadline keeps
	// running, but its result is discarded.
	Handler func(ctx context.Context, args map[string]any) (any, error)
}

// Registry holds available tools in registration order. The agent loop
// treats a registry as an immutable snapshot for the duration of one
// request; register everything up front.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Re-registering a name replaces the tool but
// keeps its original position.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name. Returns nil if not registered.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns all tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Describe returns the codec's view of every tool, in registration
// order, for system prompt rendering.
func (r *Registry) Describe() []protocol.ToolInfo {
	infos := make([]protocol.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		infos = append(infos, protocol.ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			Args:        t.Args,
			ExampleArgs: t.ExampleArgs,
		})
	}
	return infos
}
