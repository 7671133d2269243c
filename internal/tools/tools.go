package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/opsgate/triago/pkg/schema"
)

// Tool is an external collaborator invocable from a pipeline tool step.
// Implementations own their argument decoding; the engine validates the
// returned value against the step's declared output shape.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Registry is a thread-safe tool lookup table.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. Returns error on duplicate name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return schema.NewError(schema.ErrCodeValidation, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "tool %q already registered", name)
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "tool %q not registered", name)
	}
	return tool, nil
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

// stringParam reads a string argument, defaulting when absent or mistyped.
func stringParam(m map[string]any, key, defaultVal string) string {
	v, ok := m[key]
	if !ok {
		return defaultVal
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return s
}

// stringSliceParam reads a []string argument from either []string or []any.
func stringSliceParam(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
