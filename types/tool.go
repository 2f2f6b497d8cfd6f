package types

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ParamType is the semantic type of a flattened tool parameter.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

// ParameterDescriptor describes one flattened, addressable parameter of a
// synthesized tool. Names are unique within a tool and may contain
// underscore-joined path segments produced by nested-object flattening.
type ParameterDescriptor struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Nullable    bool      `json:"nullable"`
	Enum        []string  `json:"enum,omitempty"`
	Description string    `json:"description,omitempty"`
	Format      string    `json:"format,omitempty"`
	Example     string    `json:"example,omitempty"`
}

// EffectiveRequired reports whether the caller must supply the parameter.
// A declaration-required but nullable parameter is optional for the
// generated signature: the consumer must be able to omit values it does
// not have.
func (p ParameterDescriptor) EffectiveRequired() bool {
	return p.Required && !p.Nullable
}

// DisplayDescription renders the human-readable description used in tool
// documentation and declarations.
func (p ParameterDescriptor) DisplayDescription() string {
	if len(p.Enum) > 0 {
		return "One of: " + strings.Join(p.Enum, ", ")
	}
	if p.Format == "zoned-date-time" {
		return "DateTime string (e.g. '2025-01-15T00:00:00Z')"
	}
	return p.Description
}

// PartyDescriptor describes one authorization role extracted from a
// schema's @parties property. Each party expands into exactly two
// synthesized parameters: {role}_organization and {role}_department.
type PartyDescriptor struct {
	Role     string `json:"role"`
	Required bool   `json:"required"`
}

// ToolKind classifies the remote operation a tool wraps.
type ToolKind string

const (
	// ToolKindCreate instantiates a new protocol instance.
	ToolKindCreate ToolKind = "create"
	// ToolKindAction executes a named action on an existing instance.
	ToolKindAction ToolKind = "action"
)

// InvokeFunc is the generic entrypoint synthesized for a tool. It receives
// the sparse argument map supplied by the calling framework.
type InvokeFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool is a synthesized, typed, invocable wrapper around one remote
// operation. Immutable after synthesis; its lifetime is bounded by the
// enclosing cache entry's TTL.
type Tool struct {
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Kind        ToolKind              `json:"kind"`
	Package     string                `json:"package"`
	Protocol    string                `json:"protocol"`
	Action      string                `json:"action,omitempty"`
	Parameters  []ParameterDescriptor `json:"parameters"`
	Handler     InvokeFunc            `json:"-"`
}

// InvokeHint is attached to failed invocations so an LLM caller gets
// plain-language correction guidance instead of a stack trace.
const InvokeHint = "Check that all required fields are provided with correct types"

// Invoke runs the tool and always returns a well-formed result. Failures of
// any kind, including handler panics, come back as {error, hint} so a
// calling agent's reasoning loop is never aborted by this layer.
func (t *Tool) Invoke(ctx context.Context, args map[string]any) (res *ToolResult) {
	start := time.Now()
	res = &ToolResult{Name: t.Name}

	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Result = nil
			res.Error = fmt.Sprintf("panic: %v", r)
			res.Hint = InvokeHint
		}
	}()

	if t.Handler == nil {
		res.Error = "tool has no handler"
		res.Hint = InvokeHint
		return res
	}

	result, err := t.Handler(ctx, args)
	if err != nil {
		res.Error = err.Error()
		res.Hint = InvokeHint
		return res
	}
	if result == nil {
		result = map[string]any{}
	}
	res.Result = result
	return res
}

// Declaration renders the tool's parameter list as a JSON Schema object so
// a calling framework can introspect names, types, and required-ness
// without bespoke binding.
func (t *Tool) Declaration() (*ToolSchema, error) {
	properties := make(map[string]any, len(t.Parameters))
	required := make([]string, 0, len(t.Parameters))

	for _, p := range t.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if desc := p.DisplayDescription(); desc != "" {
			prop["description"] = desc
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Format != "" {
			prop["format"] = p.Format
		}
		if p.Nullable {
			prop["nullable"] = true
		}
		properties[p.Name] = prop

		if p.EffectiveRequired() {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	return &ToolSchema{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  raw,
	}, nil
}

// ToolSchema defines a tool's interface for LLM function calling.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult represents the outcome of a tool invocation.
type ToolResult struct {
	Name     string         `json:"name"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Hint     string         `json:"hint,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// IsError returns true if the invocation failed.
func (tr *ToolResult) IsError() bool {
	return tr.Error != ""
}

// Payload returns the value handed back to the calling framework: the
// remote result on success, or {error, hint} on failure.
func (tr *ToolResult) Payload() map[string]any {
	if tr.IsError() {
		payload := map[string]any{"error": tr.Error}
		if tr.Hint != "" {
			payload["hint"] = tr.Hint
		}
		return payload
	}
	if tr.Result == nil {
		return map[string]any{}
	}
	return tr.Result
}
