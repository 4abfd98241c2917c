package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDescriptor is the adapter-local view of a tool advertised by an MCP server.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolCallResult is the adapter-local view of a CallTool response. Content is
// the JSON-encoded array of content blocks returned by the server.
type ToolCallResult struct {
	Content json.RawMessage
	IsError bool
}

// Error is a JSON-RPC style error surfaced by an MCP server or transport.
type Error struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Data) == 0 {
		return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("mcp error %d: %s (%s)", e.Code, e.Message, string(e.Data))
}

func toToolDescriptor(tool *mcpsdk.Tool) ToolDescriptor {
	if tool == nil {
		return ToolDescriptor{}
	}
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		schema = json.RawMessage(`{}`)
	}
	return ToolDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		Schema:      schema,
	}
}

func toToolCallResult(res *mcpsdk.CallToolResult) *ToolCallResult {
	if res == nil {
		return &ToolCallResult{Content: json.RawMessage(`[]`)}
	}
	content, err := json.Marshal(res.Content)
	if err != nil {
		content = json.RawMessage(`[]`)
	}
	return &ToolCallResult{Content: content, IsError: res.IsError}
}

// convertError normalizes an error returned by the MCP SDK into an *Error so
// callers can branch on a stable code without depending on the SDK's
// internal error types, which are not part of the adapter's contract.
func convertError(err error) error {
	if err == nil {
		return nil
	}
	var adapterErr *Error
	if errors.As(err, &adapterErr) {
		return adapterErr
	}

	msg := err.Error()
	lowered := strings.ToLower(msg)
	data, _ := json.Marshal(map[string]string{"detail": msg})
	switch {
	case strings.Contains(lowered, "not found"):
		return &Error{Code: -32002, Message: msg, Data: data}
	case strings.Contains(lowered, "invalid param"), strings.Contains(lowered, "missing tool"), strings.Contains(lowered, "unknown tool"):
		return &Error{Code: -32602, Message: msg}
	default:
		return &Error{Code: -32000, Message: msg}
	}
}
