package toolcall

import (
	"context"
	"fmt"
	"sync"
)

// Metadata describes a registered tool for display purposes
type Metadata struct {
	Name        string
	Description string
	DisplayName string
}

// Registry is the collaborator that maps a tool name to an executable handler
// and declares whether it needs interactive confirmation before running.
type Registry interface {
	// HasInterrupt reports whether the tool requires an explicit user
	// confirmation before execution.
	HasInterrupt(name string, args map[string]any) bool

	// Execute runs the named tool with the given arguments
	Execute(ctx context.Context, name string, args map[string]any) (Result, error)

	// Metadata returns display information for a tool
	Metadata(name string) (Metadata, bool)
}

// Tool is one executable capability registered at startup
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Interrupt reports whether this invocation needs user confirmation
	Interrupt(args map[string]any) bool

	// Execute runs the tool with the given parameters
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// StaticRegistry is an in-process Registry populated by registrations at
// startup rather than a compile-time name switch.
type StaticRegistry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewStaticRegistry creates an empty registry
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry
func (r *StaticRegistry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *StaticRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// HasInterrupt implements Registry
func (r *StaticRegistry) HasInterrupt(name string, args map[string]any) bool {
	tool, exists := r.Get(name)
	if !exists {
		// unknown tools always need a human in the loop
		return true
	}
	return tool.Interrupt(args)
}

// Execute implements Registry
func (r *StaticRegistry) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	tool, exists := r.Get(name)
	if !exists {
		return Result{Status: "error", Message: fmt.Sprintf("tool %s not found", name)},
			fmt.Errorf("tool %s not found", name)
	}
	return tool.Execute(ctx, args)
}

// Metadata implements Registry
func (r *StaticRegistry) Metadata(name string) (Metadata, bool) {
	tool, exists := r.Get(name)
	if !exists {
		return Metadata{}, false
	}
	return Metadata{
		Name:        tool.Name(),
		Description: tool.Description(),
		DisplayName: tool.Name(),
	}, true
}

var _ Registry = (*StaticRegistry)(nil)
