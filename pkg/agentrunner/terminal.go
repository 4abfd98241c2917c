package agentrunner

import (
	"context"
	"fmt"

	"github.com/opencompletion/rce/pkg/interpreter"
	"github.com/opencompletion/rce/pkg/toolkit"
)

// finalTool implements FINAL(answer): the ordinary, natural-language way an
// iteration signals it is done.
type finalTool struct {
	state *agentState
}

func (t *finalTool) Name() string        { return "FINAL" }
func (t *finalTool) Description() string { return "Call this once the task is fully answered, with the final answer as argument." }

func (t *finalTool) Schema() *toolkit.JSONSchema {
	return &toolkit.JSONSchema{
		Type:       "object",
		Properties: map[string]interface{}{"answer": map[string]interface{}{"type": "string"}},
		Required:   []string{"answer"},
	}
}

func (t *finalTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.ToolResult, error) {
	answer, _ := params["answer"].(string)
	if answer == "" {
		return &toolkit.ToolResult{Success: false, Error: fmt.Errorf("FINAL: answer is required")}, nil
	}
	t.state.setFinal(answer)
	return &toolkit.ToolResult{Success: true, Output: answer}, nil
}

// finalVarTool implements FINAL_VAR(variable_name): termination by reference
// to a variable left behind in the interpreter session by an earlier tool
// call. Missing variables do not terminate the run — the iteration loop
// continues so the LLM can try something else.
type finalVarTool struct {
	state *agentState
	interp *interpreter.Session
}

func (t *finalVarTool) Name() string        { return "FINAL_VAR" }
func (t *finalVarTool) Description() string { return "Call this to terminate with the value of a variable already bound in the interpreter session." }

func (t *finalVarTool) Schema() *toolkit.JSONSchema {
	return &toolkit.JSONSchema{
		Type:       "object",
		Properties: map[string]interface{}{"variable_name": map[string]interface{}{"type": "string"}},
		Required:   []string{"variable_name"},
	}
}

func (t *finalVarTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.ToolResult, error) {
	name, _ := params["variable_name"].(string)
	if name == "" {
		return &toolkit.ToolResult{Success: false, Error: fmt.Errorf("FINAL_VAR: variable_name is required")}, nil
	}
	vars := t.interp.Snapshot()
	v, ok := vars[name]
	if !ok {
		return &toolkit.ToolResult{Success: false, Error: fmt.Errorf("FINAL_VAR: variable %q is not bound", name)}, nil
	}
	value := fmt.Sprintf("%v", v)
	t.state.setFinalVar(name, value)
	return &toolkit.ToolResult{Success: true, Output: value}, nil
}
