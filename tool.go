package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
)

// ParamType is the set of parameter types a tool may declare.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamEnum    ParamType = "enum"
)

// Param describes one tool parameter. Order in the parameter list is the
// order shown in generated documentation.
type Param struct {
	Name        string
	Type        ParamType
	Enum        []string // values for ParamEnum
	Required    bool
	Description string
}

// HandlerResult is a successful tool outcome. Data is marshaled for the
// model (raw, data-dense); UserText is prose for direct UI display.
type HandlerResult struct {
	Data     any
	UserText string
}

// Handler executes a tool against the injected application state. Arguments
// arrive validated and coerced to the declared types. An error return is a
// domain failure ("no active session"), not a fault: it is fed back to the
// model as a failed tool result.
type Handler func(ctx context.Context, args map[string]any, state any) (HandlerResult, error)

// Tool is a named, schema-described application action invocable by the
// model through the text tag vocabulary.
type Tool struct {
	Name        string
	Description string
	Category    string
	Params      []Param
	Examples    []string
	Handler     Handler
}

// Schema renders the parameter list as a JSON Schema object. The executor
// validates coerced argument maps against it; unknown attributes are allowed
// for forward compatibility.
func (t Tool) Schema() (json.RawMessage, error) {
	props := map[string]any{}
	var required []string
	for _, p := range t.Params {
		if p.Name == "" {
			return nil, fmt.Errorf("tool %q has a parameter with no name", t.Name)
		}
		var def map[string]any
		switch p.Type {
		case ParamString:
			def = map[string]any{"type": "string"}
		case ParamNumber:
			def = map[string]any{"type": "number"}
		case ParamBoolean:
			def = map[string]any{"type": "boolean"}
		case ParamEnum:
			if len(p.Enum) == 0 {
				return nil, fmt.Errorf("tool %q parameter %q: enum with no values", t.Name, p.Name)
			}
			vals := make([]any, 0, len(p.Enum))
			for _, v := range p.Enum {
				vals = append(vals, v)
			}
			def = map[string]any{"type": "string", "enum": vals}
		default:
			return nil, fmt.Errorf("tool %q parameter %q: unknown type %q", t.Name, p.Name, p.Type)
		}
		if p.Description != "" {
			def["description"] = p.Description
		}
		props[p.Name] = def
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return json.Marshal(schema)
}

func (t Tool) param(name string) (Param, bool) {
	for _, p := range t.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// exampleValue is a placeholder used in generated usage lines.
func (p Param) exampleValue() string {
	switch p.Type {
	case ParamNumber:
		return "25"
	case ParamBoolean:
		return "true"
	case ParamEnum:
		return p.Enum[0]
	default:
		return "value"
	}
}
