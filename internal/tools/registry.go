// Package tools provides the tool registry: a closed set of named timeline
// capabilities with declared JSON schemas, executed through an abort-aware
// wrapper. LLM-supplied arguments are validated against the declared schema
// before any tool body runs.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/cutline/orchestrator/internal/domain"
	"github.com/cutline/orchestrator/internal/editor"
)

// ExecuteFunc is a tool body. It receives the session's document handle
// explicitly and reports failures as structured results, never as panics.
type ExecuteFunc func(ctx context.Context, doc editor.DocumentMutator, args map[string]any) domain.ToolResult

// Definition declares one tool: its schema surface for the chat provider
// and its executable body.
type Definition struct {
	Name        string
	Description string
	Operation   domain.Operation
	Parameters  map[string]any // JSON Schema for the arguments object
	Execute     ExecuteFunc
}

// Spec is the JSON-schema surface exposed to the chat provider.
type Spec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Registry stores tool definitions keyed by tool name. Registration happens
// at startup; execution is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Definition
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Definition),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its parameter schema.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Execute == nil {
		return fmt.Errorf("tool %s has no body", def.Name)
	}

	var schema *jsonschema.Schema
	if def.Parameters != nil {
		doc, err := normalizeJSON(def.Parameters)
		if err != nil {
			return fmt.Errorf("failed to normalize schema for %s: %w", def.Name, err)
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema.json", doc); err != nil {
			return fmt.Errorf("failed to add schema resource for %s: %w", def.Name, err)
		}
		schema, err = c.Compile("schema.json")
		if err != nil {
			return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = def
	if schema != nil {
		r.schemas[def.Name] = schema
	}
	return nil
}

// MustRegister registers a tool and panics on error. Intended for startup
// wiring only.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns the definition for a tool name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Specs returns the tool surface for the chat provider, sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.tools))
	for _, def := range r.tools {
		specs = append(specs, Spec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Validate checks arguments against a tool's declared schema without running
// the tool.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	_, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	normalized, err := normalizeJSON(args)
	if err != nil {
		return fmt.Errorf("arguments for %s are not valid JSON: %w", name, err)
	}
	if schema != nil {
		if err := schema.Validate(normalized); err != nil {
			return fmt.Errorf("arguments for %s failed validation: %w", name, err)
		}
	}
	return nil
}

// Execute validates the arguments and runs the tool body under the caller's
// context. An already-cancelled context short-circuits to the cancelled
// sentinel without side effects; a deadline hit mid-execution is reported as
// a PROVIDER_UNAVAILABLE-class failure so it flows into recovery.
func (r *Registry) Execute(ctx context.Context, doc editor.DocumentMutator, name string, args map[string]any) domain.ToolResult {
	if ctx.Err() != nil {
		return domain.CancelledResult(name)
	}

	r.mu.RLock()
	def, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return validationFailure(fmt.Sprintf("unknown tool %q", name))
	}

	if args == nil {
		args = map[string]any{}
	}
	normalized, err := normalizeJSON(args)
	if err != nil {
		return validationFailure(fmt.Sprintf("arguments for %s are not valid JSON: %v", name, err))
	}
	if schema != nil {
		if err := schema.Validate(normalized); err != nil {
			return validationFailure(fmt.Sprintf("arguments for %s failed validation: %v", name, err))
		}
	}
	typed, _ := normalized.(map[string]any)
	if typed == nil {
		typed = map[string]any{}
	}

	done := make(chan domain.ToolResult, 1)
	go func() {
		done <- def.Execute(ctx, doc, typed)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return domain.ToolResult{
				Success: false,
				Message: fmt.Sprintf("tool %s exceeded its execution timeout", name),
				Data:    map[string]any{"errorCode": domain.ErrCodeProviderUnavailable},
			}
		}
		return domain.CancelledResult(name)
	}
}

func validationFailure(msg string) domain.ToolResult {
	return domain.ToolResult{
		Success: false,
		Message: msg,
		Data:    map[string]any{"errorCode": domain.ErrCodeValidationError},
	}
}

// normalizeJSON round-trips a value through encoding/json so schema
// validation and tool bodies see canonical JSON types (float64 numbers,
// map[string]any objects).
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
