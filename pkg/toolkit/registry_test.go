package toolkit

import (
	"context"
	"strings"
	"testing"
)

type stubTool struct {
	name   string
	schema *JSONSchema
	result *ToolResult
	err    error
	calls  int
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() *JSONSchema { return s.schema }

func (s *stubTool) Execute(_ context.Context, params map[string]interface{}) (*ToolResult, error) {
	s.calls++
	if s.result == nil {
		return &ToolResult{Success: true}, s.err
	}
	return s.result, s.err
}

func TestRegistryRegister(t *testing.T) {
	tests := []struct {
		name        string
		tool        Tool
		preRegister bool
		wantErr     string
	}{
		{name: "nil tool", tool: nil, wantErr: "tool is nil"},
		{name: "empty name", tool: &stubTool{name: ""}, wantErr: "name is empty"},
		{name: "duplicate name", tool: &stubTool{name: "dup"}, preRegister: true, wantErr: "already registered"},
		{name: "success", tool: &stubTool{name: "echo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			if tt.preRegister {
				if err := r.Register(tt.tool); err != nil {
					t.Fatalf("setup register: %v", err)
				}
			}
			err := r.Register(tt.tool)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("want error containing %q got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("register failed: %v", err)
			}
		})
	}
}

func TestRegistryExecuteValidatesSchema(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{
		name:   "greet",
		schema: &JSONSchema{Type: "object", Required: []string{"name"}, Properties: map[string]interface{}{"name": map[string]interface{}{"type": "string"}}},
		result: &ToolResult{Success: true, Output: "hi"},
	}
	if err := r.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := r.Execute(context.Background(), nil, "greet", map[string]interface{}{}); err == nil {
		t.Fatalf("expected validation error for missing required field")
	}

	res, err := r.Execute(context.Background(), nil, "greet", map[string]interface{}{"name": "ada"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if res.Output != "hi" || tool.calls != 1 {
		t.Fatalf("unexpected result %+v calls=%d", res, tool.calls)
	}
}

func TestRegistryExecuteExtrasShadowGlobal(t *testing.T) {
	r := NewRegistry()
	global := &stubTool{name: "lookup", result: &ToolResult{Output: "global"}}
	if err := r.Register(global); err != nil {
		t.Fatalf("register: %v", err)
	}
	extra := &stubTool{name: "lookup", result: &ToolResult{Output: "extra"}}

	res, err := r.Execute(context.Background(), []Tool{extra}, "lookup", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Output != "extra" {
		t.Fatalf("expected extras to shadow global tool, got %q", res.Output)
	}
	if global.calls != 0 || extra.calls != 1 {
		t.Fatalf("expected only extra invoked, global=%d extra=%d", global.calls, extra.calls)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Execute(context.Background(), nil, "missing", nil); err == nil {
		t.Fatalf("expected error for unknown tool")
	}
}
