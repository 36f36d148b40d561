package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/skillrun/pkg/llm"
)

var (
	ErrUnknownTool     = errors.New("unknown tool")
	ErrInvalidArgument = errors.New("invalid arguments")
)

// Handler runs a tool with decoded JSON arguments and returns its textual
// result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Definition describes a tool. Parameters holds the JSON-schema property
// map of the argument object; Required lists mandatory property names.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
	Handler     Handler
}

// schemaObject returns the full JSON-schema object for the arguments.
func (d *Definition) schemaObject() map[string]any {
	props := d.Parameters
	if props == nil {
		props = map[string]any{}
	}
	required := d.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Registry holds the tools offered to the model. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	defs      map[string]*Definition
	order     []string
	validator map[string]*sjsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:      make(map[string]*Definition),
		validator: make(map[string]*sjsonschema.Schema),
	}
}

// Register adds or replaces a tool. The parameter schema is compiled so
// arguments can be checked before the handler runs.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("register tool: name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("register tool %q: handler is required", def.Name)
	}

	sch, err := compileArguments(def.Name, def.schemaObject())
	if err != nil {
		return fmt.Errorf("register tool %q: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	d := def
	r.defs[def.Name] = &d
	r.validator[def.Name] = sch
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Schemas returns the tool descriptions sent to providers, in registration
// order.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		d := r.defs[name]
		out = append(out, llm.ToolSchema{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.schemaObject(),
		})
	}
	return out
}

// Call runs the named tool and returns its result or error. A panicking
// handler is reported as an error.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (out string, err error) {
	r.mu.RLock()
	d, ok := r.defs[name]
	sch := r.validator[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArguments(sch, args); err != nil {
		return "", err
	}
	defer func() {
		if p := recover(); p != nil {
			out, err = "", fmt.Errorf("tool panicked: %v", p)
		}
	}()
	return d.Handler(ctx, args)
}

// Execute runs the named tool and always returns text: handler failures
// are rendered as an error string so the conversation can continue.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	out, err := r.Call(ctx, name, args)
	if err != nil {
		if errors.Is(err, ErrUnknownTool) {
			return fmt.Sprintf("Error: Unknown tool '%s'", name)
		}
		return fmt.Sprintf("Error executing tool '%s': %v", name, err)
	}
	return out
}

func compileArguments(name string, schemaObject map[string]any) (*sjsonschema.Schema, error) {
	data, err := json.Marshal(schemaObject)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	doc, err := sjsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	url := "tool-" + neturl.PathEscape(name) + ".json"
	c := sjsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add parameters resource: %w", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile parameters: %w", err)
	}
	return sch, nil
}

func validateArguments(sch *sjsonschema.Schema, args map[string]any) error {
	if sch == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}
