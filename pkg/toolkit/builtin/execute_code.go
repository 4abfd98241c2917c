package toolbuiltin

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencompletion/rce/pkg/interpreter"
	"github.com/opencompletion/rce/pkg/session"
	"github.com/opencompletion/rce/pkg/toolkit"
)

const defaultExecuteCodeDescription = "Run a restricted Go snippet against this session's persistent variable store and return its printed output."

var executeCodeSchema = &toolkit.JSONSchema{
	Type: "object",
	Properties: map[string]interface{}{
		"code": map[string]interface{}{
			"type":        "string",
			"description": "Restricted Go statements to execute.",
		},
		"profile": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"quick", "default", "analysis", "extended"},
			"description": "Resource envelope to run under; defaults to \"default\".",
		},
		"context_overrides": map[string]interface{}{
			"type":        "object",
			"description": "Optional overlay variables merged into the session's variable store before this run.",
		},
	},
	Required: []string{"code"},
}

// ExecuteCodeTool is the canonical example of a tool the Orchestrator
// dispatches to: the sandboxed interpreter, bound to one session so
// variables assigned in one call are visible to the next.
type ExecuteCodeTool struct {
	sess *session.Session
}

// NewExecuteCodeTool binds an interpreter-execution tool to sess. Every call
// of the returned tool runs against sess's variable store and no other
// session's.
func NewExecuteCodeTool(sess *session.Session) *ExecuteCodeTool {
	return &ExecuteCodeTool{sess: sess}
}

func (t *ExecuteCodeTool) Name() string { return "execute_code" }

func (t *ExecuteCodeTool) Description() string { return defaultExecuteCodeDescription }

func (t *ExecuteCodeTool) Schema() *toolkit.JSONSchema { return executeCodeSchema }

func (t *ExecuteCodeTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.ToolResult, error) {
	if t == nil || t.sess == nil {
		return nil, errors.New("toolbuiltin: execute_code tool is not bound to a session")
	}
	code, _ := params["code"].(string)
	if code == "" {
		return &toolkit.ToolResult{Success: false, Error: errors.New("execute_code: code is required")}, nil
	}
	profile, _ := params["profile"].(string)

	if overrides, ok := params["context_overrides"].(map[string]interface{}); ok && len(overrides) > 0 {
		vars := make(map[string]any, len(overrides))
		for k, v := range overrides {
			vars[k] = v
		}
		t.sess.Interpreter().Merge(vars)
	}

	res, err := interpreter.Execute(ctx, t.sess.Interpreter(), code, interpreter.Profile(profile))
	if err != nil {
		result := &toolkit.ToolResult{Success: false, Error: fmt.Errorf("execute_code: %w", err)}
		var failure *interpreter.Failure
		if errors.As(err, &failure) {
			result.Module = failure.Module
			result.Allowed = failure.Allowed
		}
		return result, nil
	}
	return &toolkit.ToolResult{Success: true, Output: res.Output, Data: res.Value, Truncated: res.Truncated}, nil
}
