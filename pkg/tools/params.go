package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ParametersFor reflects the argument struct T into a JSON-schema property
// map and the list of required property names. Fields are described with
// `json` and `jsonschema` tags; `jsonschema:"required"` marks mandatory
// fields.
func ParametersFor[T any]() (map[string]any, []string, error) {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var zero T
	s := r.Reflect(&zero)

	data, err := json.Marshal(s)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal parameter schema: %w", err)
	}
	var doc struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal parameter schema: %w", err)
	}
	if doc.Properties == nil {
		doc.Properties = map[string]any{}
	}
	return doc.Properties, doc.Required, nil
}

// Typed adapts a handler taking a decoded argument struct.
func Typed[T any](fn func(ctx context.Context, args T) (string, error)) Handler {
	return func(ctx context.Context, raw map[string]any) (string, error) {
		var args T
		data, err := json.Marshal(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return fn(ctx, args)
	}
}

// Define builds a Definition whose parameters are reflected from T.
func Define[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (Definition, error) {
	props, required, err := ParametersFor[T]()
	if err != nil {
		return Definition{}, fmt.Errorf("define tool %q: %w", name, err)
	}
	return Definition{
		Name:        name,
		Description: description,
		Parameters:  props,
		Required:    required,
		Handler:     Typed(fn),
	}, nil
}
