package tool

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"lmagent/internal/llm"
)

// ErrNotFound is returned by Resolve for a name that was never registered.
var ErrNotFound = errors.New("tool not found")

// Registry maps tool names to implementations. It is built once and never
// mutated afterwards, so lookups need no locking.
type Registry struct {
	tools map[string]Tool
	names []string
}

// NewRegistry builds a registry from tools. Duplicate names are an error.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			return nil, errors.New("nil tool")
		}
		name := t.Name()
		if name == "" {
			return nil, errors.New("tool with empty name")
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("tool %s already registered", name)
		}
		r.tools[name] = t
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Resolve looks a tool up by name.
func (r *Registry) Resolve(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return t, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.names)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// List returns the tools sorted by name.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.names))
	for i, name := range r.names {
		out[i] = r.tools[name]
	}
	return out
}

// Restrict returns a registry holding only the allowed tools. An empty
// allowlist keeps everything.
func (r *Registry) Restrict(allow []string) (*Registry, error) {
	if len(allow) == 0 {
		return r, nil
	}
	tools := make([]Tool, 0, len(allow))
	seen := make(map[string]bool, len(allow))
	for _, name := range allow {
		if seen[name] {
			continue
		}
		seen[name] = true
		t, err := r.Resolve(name)
		if err != nil {
			return nil, fmt.Errorf("tool allowlist: %w", err)
		}
		tools = append(tools, t)
	}
	return NewRegistry(tools...)
}

// Definitions returns the tool declarations sent to the collaborator.
func (r *Registry) Definitions() []*llm.ToolDefinition {
	tools := r.List()
	defs := make([]*llm.ToolDefinition, len(tools))

	for i, t := range tools {
		defs[i] = &llm.ToolDefinition{
			Type: "function",
			Function: &llm.FunctionDef{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		}
	}

	return defs
}

// OpenAIFunctions exports the schemas in the OpenAI function-calling shape.
func (r *Registry) OpenAIFunctions() []map[string]any {
	tools := r.List()
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  t.Parameters(),
			},
		}
	}
	return out
}

// AnthropicTools exports the schemas in the Anthropic tool-use shape.
func (r *Registry) AnthropicTools() []map[string]any {
	tools := r.List()
	out := make([]map[string]any, len(tools))
	for i, t := range tools {
		out[i] = map[string]any{
			"name":         t.Name(),
			"description":  t.Description(),
			"input_schema": t.Parameters(),
		}
	}
	return out
}

// Catalogue renders "- name: description" lines for the system prompt.
func (r *Registry) Catalogue() string {
	var b strings.Builder
	for i, t := range r.List() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", t.Name(), t.Description())
	}
	return b.String()
}
