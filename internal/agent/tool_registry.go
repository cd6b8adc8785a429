package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ToolRegistry is the in-memory catalog of tools available to the runtime.
// It is read-only after startup: registration happens once at boot, and
// every subsequent operation only reads.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool under its own name. A duplicate name fails unless
// allowOverride is set, in which case it replaces the existing entry.
func (r *ToolRegistry) Register(tool Tool, allowOverride bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if _, exists := r.tools[name]; exists && !allowOverride {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = tool
	return nil
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// ListAll returns every registered tool name in lexicographic order.
func (r *ToolRegistry) ListAll() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// toolSchema is the function-calling-form schema exported for one tool.
type toolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Schemas returns the function-calling schemas for the given allow-list. A
// nil or empty allowed list returns every registered tool (lexicographic
// order); otherwise schemas are returned in the order the list names them,
// and an unknown name fails the whole call.
func (r *ToolRegistry) Schemas(allowed []string) ([]toolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(allowed) == 0 {
		names := make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
		return r.schemasForLocked(names)
	}
	return r.schemasForLocked(allowed)
}

func (r *ToolRegistry) schemasForLocked(names []string) ([]toolSchema, error) {
	out := make([]toolSchema, 0, len(names))
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAllowedTool, name)
		}
		out = append(out, toolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return out, nil
}
