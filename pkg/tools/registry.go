// Package tools implements the tool invoker used by the agentic sub-loop.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zen-systems/gameforge/pkg/adapter"
)

var (
	ErrToolNotFound  = errors.New("tool not found")
	ErrToolNameEmpty = errors.New("tool name is empty")
	ErrNilHandler    = errors.New("tool handler is nil")
)

// InvocationError wraps a failure raised by a tool handler.
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Handler executes one tool call using parsed arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool pairs a model-facing definition with its handler.
type Tool struct {
	Definition adapter.ToolDefinition
	Handler    Handler
}

// Invoker runs tools by name.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
	Definitions() []adapter.ToolDefinition
}

// Registry stores tools by name and executes tool calls.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	name := tool.Definition.Name
	if name == "" {
		return ErrToolNameEmpty
	}
	if tool.Handler == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Invoke executes the named tool.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrToolNameEmpty
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	if args == nil {
		args = map[string]any{}
	}
	out, err := tool.Handler(ctx, args)
	if err != nil {
		return "", &InvocationError{Tool: name, Err: err}
	}
	return out, nil
}

// Definitions returns every tool definition sorted by name.
func (r *Registry) Definitions() []adapter.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]adapter.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Subset returns a registry exposing only the named tools. Unknown names
// are ignored.
func (r *Registry) Subset(names ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := &Registry{tools: make(map[string]Tool, len(names))}
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			sub.tools[name] = tool
		}
	}
	return sub
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}
