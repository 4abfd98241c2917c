package toolbuiltin

import (
	"context"
	"testing"

	"github.com/opencompletion/rce/pkg/session"
)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	mgr, err := session.NewManager(1)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	sess, err := mgr.GetOrCreate("execute-code-test")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	return sess
}

func TestExecuteCodeToolRunsAgainstSession(t *testing.T) {
	tool := NewExecuteCodeTool(newTestSession(t))

	res, err := tool.Execute(context.Background(), map[string]interface{}{"code": "x := 40\ny := 2\nreturn x + y"})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error: %v", res.Error)
	}
	if res.Data != float64(42) {
		t.Fatalf("Data = %v, want 42", res.Data)
	}
}

func TestExecuteCodePersistsVariablesAcrossCalls(t *testing.T) {
	tool := NewExecuteCodeTool(newTestSession(t))

	if _, err := tool.Execute(context.Background(), map[string]interface{}{"code": "count := 1"}); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	res, err := tool.Execute(context.Background(), map[string]interface{}{"code": "count += 1\nreturn count"})
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if res.Data != float64(2) {
		t.Fatalf("Data = %v, want 2", res.Data)
	}
}

func TestExecuteCodeRejectsEmptyCode(t *testing.T) {
	tool := NewExecuteCodeTool(newTestSession(t))
	res, err := tool.Execute(context.Background(), map[string]interface{}{"code": ""})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Success {
		t.Fatalf("expected failure for empty code")
	}
}

func TestExecuteCodeUnboundToolErrors(t *testing.T) {
	tool := NewExecuteCodeTool(nil)
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"code": "x := 1"}); err == nil {
		t.Fatalf("expected an error for an unbound tool")
	}
}
