// Package toolbuiltin holds tool implementations shipped alongside the
// engine itself rather than supplied by a caller.
package toolbuiltin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opencompletion/rce/pkg/mcp/adapter"
	"github.com/opencompletion/rce/pkg/toolkit"
)

const defaultDocSearchDescription = "Search external documentation via the configured MCP documentation server and return matching passages."

var docSearchSchema = &toolkit.JSONSchema{
	Type: "object",
	Properties: map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Natural-language documentation query.",
		},
		"max_results": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of passages to return.",
		},
	},
	Required: []string{"query"},
}

// DocSearchTool reaches the documentation-retrieval boundary through an MCP
// server. Which concrete server backs it — and therefore what corpus it
// searches — is a deployment concern resolved by the *adapter.Client passed
// to NewDocSearchTool, not a choice this tool makes.
type DocSearchTool struct {
	client    *adapter.Client
	toolName  string
	resultCap int
}

// NewDocSearchTool wraps an already-configured MCP client. remoteToolName is
// the name of the tool as advertised by the MCP server (servers are free to
// call it "search_docs", "docs.query", etc.); it is looked up once per
// Execute via client.InvokeTool rather than cached, since a server's tool
// set can change between calls.
func NewDocSearchTool(client *adapter.Client, remoteToolName string) *DocSearchTool {
	return &DocSearchTool{client: client, toolName: remoteToolName, resultCap: 20}
}

func (d *DocSearchTool) Name() string { return "doc_search" }

func (d *DocSearchTool) Description() string { return defaultDocSearchDescription }

func (d *DocSearchTool) Schema() *toolkit.JSONSchema { return docSearchSchema }

func (d *DocSearchTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.ToolResult, error) {
	if ctx == nil {
		return nil, errors.New("toolbuiltin: context is nil")
	}
	if d == nil || d.client == nil {
		return nil, errors.New("toolbuiltin: doc_search tool is not configured with an MCP client")
	}

	query, _ := params["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("toolbuiltin: query is empty")
	}

	args := map[string]interface{}{"query": query}
	if max, ok := params["max_results"]; ok {
		args["max_results"] = max
	} else {
		args["max_results"] = d.resultCap
	}

	res, err := d.client.InvokeTool(ctx, d.toolName, args)
	if err != nil {
		return nil, fmt.Errorf("toolbuiltin: doc_search: %w", err)
	}

	var passages []map[string]any
	if err := json.Unmarshal(res.Content, &passages); err != nil {
		return &toolkit.ToolResult{Success: !res.IsError, Output: string(res.Content), Data: res.Content}, nil
	}
	return &toolkit.ToolResult{Success: !res.IsError, Output: summarizePassages(passages), Data: passages}, nil
}

func summarizePassages(passages []map[string]any) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if text, ok := p["text"].(string); ok {
			b.WriteString(text)
			continue
		}
		raw, _ := json.Marshal(p)
		b.Write(raw)
	}
	return b.String()
}
