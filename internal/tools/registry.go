// Package tools exposes the conversational analytics operations as named,
// schema-described tools. Each tool is independently invocable by a
// tool-calling model loop, the MCP surface, or a direct caller; a failed call
// is returned as an {"error": "..."} payload rather than an error so every
// consumer handles failure as data.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/vladip1/databricks-genie-mcp/internal/provider"
)

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Handler executes a tool call against its decoded arguments. A returned
// error is converted by the registry into an error payload; it never crosses
// the registry boundary as a Go error.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Registry manages the available tools and their execution.
type Registry struct {
	mu       sync.RWMutex
	defs     map[string]Definition
	handlers map[string]Handler
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:     make(map[string]Definition),
		handlers: make(map[string]Handler),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(def Definition, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %q has no handler", def.Name)
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}

	r.defs[def.Name] = def
	r.handlers[def.Name] = handler
	return nil
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	return def, ok
}

// List returns all registered tool definitions sorted by name, so both the
// model-facing declaration order and the MCP listing are deterministic.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Has checks whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.defs[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.defs)
}

// Execute runs a tool and returns its JSON result. All failures — unknown
// tool, bad arguments, handler errors — come back as an {"error": "..."}
// payload; Execute itself never fails.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) json.RawMessage {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return errorPayload(fmt.Sprintf("unknown tool: %s", name))
	}

	result, err := handler(ctx, args)
	if err != nil {
		return errorPayload(err.Error())
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errorPayload(fmt.Sprintf("encode %s result: %v", name, err))
	}
	return data
}

// ProviderTools returns the registered tools as the declarations the chat
// providers consume, in List order.
func (r *Registry) ProviderTools() []provider.ToolDefinition {
	defs := r.List()

	result := make([]provider.ToolDefinition, 0, len(defs))
	for _, def := range defs {
		result = append(result, provider.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  schemaMap(def.InputSchema),
		})
	}
	return result
}

// IsErrorPayload reports whether a tool result is an error payload.
func IsErrorPayload(result json.RawMessage) bool {
	var payload struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return false
	}
	return payload.Error != nil
}

func errorPayload(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

func schemaMap(s *jsonschema.Schema) map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
