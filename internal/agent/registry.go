// Package agent drives the model-reasoning loop and its tools.
package agent

import (
	"context"
	"fmt"
	"math"

	"github.com/feedforge/feedforge/internal/core"
)

// FieldType is the wire type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
)

// Field describes one tool input parameter.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Description string
}

// Schema declares a tool's input contract. Model-supplied input is
// validated and coerced against it before the tool executes.
type Schema struct {
	Fields []Field
}

// Validate checks input against the schema and returns a coerced copy.
// Unknown keys are dropped rather than rejected: models routinely add
// stray fields and the declared contract is what matters.
func (s Schema) Validate(tool string, input map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		raw, ok := input[f.Name]
		if !ok || raw == nil {
			if f.Required {
				return nil, core.ErrInvalidToolInput(tool, fmt.Sprintf("missing required field %q", f.Name))
			}
			continue
		}
		switch f.Type {
		case FieldString:
			v, ok := raw.(string)
			if !ok {
				return nil, core.ErrInvalidToolInput(tool, fmt.Sprintf("field %q must be a string", f.Name))
			}
			out[f.Name] = v
		case FieldInteger:
			switch v := raw.(type) {
			case int:
				out[f.Name] = v
			case float64:
				// JSON numbers decode as float64.
				if v != math.Trunc(v) {
					return nil, core.ErrInvalidToolInput(tool, fmt.Sprintf("field %q must be an integer", f.Name))
				}
				out[f.Name] = int(v)
			default:
				return nil, core.ErrInvalidToolInput(tool, fmt.Sprintf("field %q must be an integer", f.Name))
			}
		default:
			return nil, core.ErrInvalidToolInput(tool, fmt.Sprintf("field %q has unsupported type %s", f.Name, f.Type))
		}
	}
	return out, nil
}

// JSONSchema renders the schema as a JSON-schema parameter object for
// the model's tool advertisement.
func (s Schema) JSONSchema() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Fields))
	var required []string
	for _, f := range s.Fields {
		props[f.Name] = map[string]interface{}{
			"type":        string(f.Type),
			"description": f.Description,
		}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Tool is one named, schema-validated capability.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, input map[string]interface{}) (interface{}, error)
}

// Registry maps tool names to capabilities. Unknown names are rejected
// explicitly at dispatch.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool.
func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %s already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, core.ErrUnknownTool(name)
	}
	return t, nil
}

// Specs returns tool advertisements in registration order.
func (r *Registry) Specs() []core.ToolSpec {
	specs := make([]core.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, core.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema().JSONSchema(),
		})
	}
	return specs
}

// Dispatch validates input and executes the named tool.
func (r *Registry) Dispatch(ctx context.Context, name string, input map[string]interface{}) (interface{}, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	validated, err := t.Schema().Validate(name, input)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, validated)
}
