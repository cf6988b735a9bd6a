// Package tools defines the tool interface and the tool registry.
package tools

import (
	"context"
	"sort"
	"sync"
)

// Tool is an executable unit. Implementations may perform network calls,
// subprocesses, or pure computation; the core only assumes Execute
// eventually returns a result or an error, possibly past its deadline.
type Tool interface {
	// Name returns the tool identifier used for registry lookup.
	Name() string

	// Execute runs the tool with the given parameters.
	Execute(ctx context.Context, params map[string]any) (map[string]any, error)
}

// Registry manages registered tools. It is read-mostly after startup and
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, overwriting any existing registration for its name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
