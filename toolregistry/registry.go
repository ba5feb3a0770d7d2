// Package toolregistry is the in-process catalog of callable tools exposed
// to the Generation Driver's tool-use loop: JSON-Schema-validated
// registration, lookup, and synchronous execution.
package toolregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/arcreflex/loomforest/message"
)

// Handler executes a tool call and returns its string result. The result
// becomes the Text content of the resulting ToolMessage; handler errors are
// not caught here, they propagate to the caller (the Generation Driver
// materializes them as an error-carrying tool result).
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a single registered entry.
type Tool struct {
	Name        string
	Description string
	Group       string
	Schema      map[string]any
}

type registeredTool struct {
	Tool
	schema  *jsonschema.Schema
	handler Handler
}

// Registry is a name-unique catalog of tools, seeded at construction with
// the built-ins current_date and introspect. It is write-once-at-init in
// practice: concurrent Execute calls are safe, but registering while a
// generation session is using the registry is not a supported pattern.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

// New returns a Registry pre-seeded with the current_date and introspect
// built-ins.
func New() *Registry {
	r := &Registry{tools: make(map[string]*registeredTool)}
	registerBuiltins(r)
	return r
}

// Register adds a tool under name. parametersSchema must describe a JSON
// object type. Registering a name that already exists returns an error.
func (r *Registry) Register(name, description string, parametersSchema map[string]any, handler Handler, group string) error {
	if name == "" {
		return fmt.Errorf("toolregistry: tool name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("toolregistry: tool %q: handler must not be nil", name)
	}

	compiled, err := compileSchema(name, parametersSchema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return &DuplicateToolError{Name: name}
	}
	r.tools[name] = &registeredTool{
		Tool: Tool{
			Name:        name,
			Description: description,
			Group:       group,
			Schema:      parametersSchema,
		},
		schema:  compiled,
		handler: handler,
	}
	return nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	c := jsonschema.NewCompiler()
	resourceURL := "mem://toolregistry/" + name
	if err := c.AddResource(resourceURL, schema); err != nil {
		return nil, fmt.Errorf("toolregistry: tool %q: compile schema: %w", name, err)
	}
	compiled, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: tool %q: compile schema: %w", name, err)
	}
	return compiled, nil
}

// List returns every registered tool's public metadata, in no particular
// order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Tool)
	}
	return out
}

// Lookup returns the tool's public metadata, for building a provider tool
// spec from a subset of active tool names.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, false
	}
	return t.Tool, true
}

// Execute validates args against name's schema and invokes its handler.
// args uses ParamMap so callers can pass a ToolUseBlock's Parameters
// directly without a lossy round trip through a plain map.
func (r *Registry) Execute(ctx context.Context, name string, args message.ParamMap) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", &UnknownToolError{Name: name}
	}

	instance := args.AsMap()
	if err := t.schema.Validate(instance); err != nil {
		return "", &SchemaValidationError{Name: name, Cause: err}
	}

	return t.handler(ctx, instance)
}
