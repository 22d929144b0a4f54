package agentloop

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/martinemde/codingagent/unifiedllm"
)

// ToolExecutor runs a tool with the raw JSON arguments chosen by the model.
// A returned error is reported to the model as a failed tool result.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (string, error)

// ToolDefinition describes a tool for the LLM (serializable metadata).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Executor   ToolExecutor
}

// ToolRegistry manages tool registration and lookup. It is safe for
// concurrent use.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// LLMDefinitions converts the registry into request tool definitions.
func (r *ToolRegistry) LLMDefinitions() []unifiedllm.ToolDefinition {
	defs := r.Definitions()
	out := make([]unifiedllm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = unifiedllm.ToolDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		}
	}
	return out
}
