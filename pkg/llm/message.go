package llm

// Message represents a single conversational turn exchanged with the model.
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
	// ToolCallID identifies the ToolCall this message answers, when Role is "tool".
	ToolCallID string
}

// ToolCall captures a tool invocation emitted by an assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDescriptor is the provider-facing shape of a registered Tool: name,
// description, and a JSON-Schema-Draft-7 parameter object. The Orchestrator
// builds one of these per dispatchable tool on every turn.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage reports token consumption for a single Adapter call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
