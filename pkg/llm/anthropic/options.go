package anthropic

import (
	"strings"

	"github.com/opencompletion/rce/pkg/llm"
)

func buildPayload(model string, messages []llm.Message, tools []llm.ToolDescriptor, opts llm.Options, stream bool) messageRequest {
	systemText, chatMessages := toAnthropicMessages(messages)

	payload := messageRequest{
		Model:       model,
		Messages:    chatMessages,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
		Temperature: opts.Temperature,
		StopSeqs:    opts.StopSequences,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = defaultMaxTokens
	}
	if systemText != "" {
		payload.System = systemText
	}
	if len(tools) > 0 {
		payload.Tools = toAnthropicTools(tools)
	}
	return payload
}

func toAnthropicTools(tools []llm.ToolDescriptor) []toolParam {
	out := make([]toolParam, 0, len(tools))
	for _, t := range tools {
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, toolParam{Name: t.Name, Description: t.Description, InputSchema: schema})
	}
	return out
}

func toAnthropicMessages(messages []llm.Message) (string, []messageParam) {
	var systemParts []string
	out := make([]messageParam, 0, len(messages))
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "system" {
			if msg.Content != "" {
				systemParts = append(systemParts, msg.Content)
			}
			continue
		}
		if role == "tool" {
			out = append(out, messageParam{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
			continue
		}

		blocks := make([]contentBlock, 0, 1+len(msg.ToolCalls))
		if msg.Content != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: msg.Content})
		}
		for _, call := range msg.ToolCalls {
			blocks = append(blocks, contentBlock{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Name,
				Input: call.Arguments,
			})
		}
		if len(blocks) == 0 {
			blocks = append(blocks, contentBlock{Type: "text", Text: ""})
		}

		out = append(out, messageParam{Role: normalizeRole(role), Content: blocks})
	}

	if len(out) == 0 {
		out = append(out, messageParam{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: ""}},
		})
	}
	return strings.Join(systemParts, "\n\n"), out
}

func normalizeRole(role string) string {
	switch role {
	case "assistant", "model":
		return "assistant"
	default:
		return "user"
	}
}

func convertResponse(resp messageResponse) llm.Result {
	var text strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return llm.Result{
		Text:      text.String(),
		ToolCalls: toolCalls,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
}
