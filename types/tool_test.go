package types

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestParameterDescriptor_EffectiveRequired(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		param    ParameterDescriptor
		expected bool
	}{
		{"required non-nullable", ParameterDescriptor{Required: true, Nullable: false}, true},
		{"required nullable is optional", ParameterDescriptor{Required: true, Nullable: true}, false},
		{"optional", ParameterDescriptor{Required: false, Nullable: false}, false},
		{"optional nullable", ParameterDescriptor{Required: false, Nullable: true}, false},
	}
	for _, tc := range cases {
		if got := tc.param.EffectiveRequired(); got != tc.expected {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestParameterDescriptor_DisplayDescription(t *testing.T) {
	t.Parallel()

	enum := ParameterDescriptor{Enum: []string{"DRAFT", "ACTIVE"}, Description: "ignored"}
	if got := enum.DisplayDescription(); got != "One of: DRAFT, ACTIVE" {
		t.Fatalf("enum description mismatch: %q", got)
	}

	dt := ParameterDescriptor{Format: "zoned-date-time"}
	if got := dt.DisplayDescription(); !strings.Contains(got, "DateTime string") {
		t.Fatalf("datetime description mismatch: %q", got)
	}

	plain := ParameterDescriptor{Description: "Amount in EUR"}
	if got := plain.DisplayDescription(); got != "Amount in EUR" {
		t.Fatalf("plain description mismatch: %q", got)
	}
}

func TestTool_InvokeSuccess(t *testing.T) {
	t.Parallel()

	tool := &Tool{
		Name: "npl_demo_Iou_create",
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"@id": "abc-123"}, nil
		},
	}

	res := tool.Invoke(context.Background(), map[string]any{"amount": 10.0})
	if res.IsError() {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Result["@id"] != "abc-123" {
		t.Fatalf("unexpected result: %v", res.Result)
	}
	if res.Name != "npl_demo_Iou_create" {
		t.Fatalf("result should carry the tool name")
	}
}

func TestTool_InvokeNeverPropagatesFailure(t *testing.T) {
	t.Parallel()

	failing := &Tool{
		Name: "npl_demo_Iou_pay",
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, NewError(ErrClient, "field 'amount' must be a number").WithHTTPStatus(400)
		},
	}
	res := failing.Invoke(context.Background(), nil)
	if !res.IsError() {
		t.Fatalf("expected error result")
	}
	if res.Hint != InvokeHint {
		t.Fatalf("expected hint %q, got %q", InvokeHint, res.Hint)
	}
	payload := res.Payload()
	if payload["error"] == "" || payload["hint"] != InvokeHint {
		t.Fatalf("payload should carry error and hint: %v", payload)
	}

	panicking := &Tool{
		Name: "npl_demo_Iou_explode",
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			panic("boom")
		},
	}
	res = panicking.Invoke(context.Background(), nil)
	if !res.IsError() || !strings.Contains(res.Error, "boom") {
		t.Fatalf("panic should surface as error result, got %+v", res)
	}

	empty := &Tool{Name: "npl_demo_Iou_void"}
	if res = empty.Invoke(context.Background(), nil); !res.IsError() {
		t.Fatalf("missing handler should surface as error result")
	}
}

func TestTool_InvokeNilResultBecomesEmptyObject(t *testing.T) {
	t.Parallel()

	tool := &Tool{
		Name: "npl_demo_Iou_void",
		Handler: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}
	res := tool.Invoke(context.Background(), nil)
	if res.IsError() {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if res.Result == nil || len(res.Result) != 0 {
		t.Fatalf("expected empty object result, got %v", res.Result)
	}
}

func TestTool_Declaration(t *testing.T) {
	t.Parallel()

	tool := &Tool{
		Name:        "npl_demo_Iou_create",
		Description: "Create Iou instance",
		Parameters: []ParameterDescriptor{
			{Name: "issuer_organization", Type: ParamString, Required: true, Description: "Organization name for issuer party"},
			{Name: "amount", Type: ParamNumber, Required: true},
			{Name: "memo", Type: ParamString, Required: true, Nullable: true},
			{Name: "status", Type: ParamString, Enum: []string{"DRAFT", "ACTIVE"}},
		},
	}

	decl, err := tool.Declaration()
	if err != nil {
		t.Fatalf("declaration failed: %v", err)
	}

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(decl.Parameters, &schema); err != nil {
		t.Fatalf("declaration is not valid JSON: %v", err)
	}
	if schema.Type != "object" {
		t.Fatalf("expected object schema, got %q", schema.Type)
	}
	if len(schema.Properties) != 4 {
		t.Fatalf("expected 4 properties, got %d", len(schema.Properties))
	}

	// Nullable-but-required parameters stay out of the required list.
	for _, name := range schema.Required {
		if name == "memo" || name == "status" {
			t.Fatalf("%s should not be required", name)
		}
	}
	if len(schema.Required) != 2 {
		t.Fatalf("expected 2 required names, got %v", schema.Required)
	}
}
