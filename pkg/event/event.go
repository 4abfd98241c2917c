// Package event defines the lifecycle/progress event taxonomy emitted while
// an orchestrator turn or agent iteration runs, and the plumbing (bus,
// bookmark, SSE stream) used to deliver it to a caller.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names one kind of lifecycle event.
type EventType string

const (
	EventProgress   EventType = "progress"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventCompletion EventType = "completion"
)

// Channel is the physical delivery lane an EventBus routes an Event onto.
type Channel string

const (
	ChannelProgress Channel = "progress"
	ChannelControl  Channel = "control"
	ChannelMonitor  Channel = "monitor"
)

// Event is a single lifecycle notification. Data holds one of the typed
// *Data structs below, boxed as any so the struct can flow through a single
// channel type regardless of EventType.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Bookmark  *Bookmark `json:"bookmark,omitempty"`
}

// ProgressData accompanies EventProgress: a human-readable note about where
// the orchestrator loop or agent runner currently is.
type ProgressData struct {
	Depth     int    `json:"depth"`
	Iteration int    `json:"iteration,omitempty"`
	Message   string `json:"message"`
}

// ToolCallData accompanies EventToolCall.
type ToolCallData struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// ToolResultData accompanies EventToolResult.
type ToolResultData struct {
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Content    string `json:"content,omitempty"`
	IsError    bool   `json:"is_error"`
	DurationMs int64  `json:"duration_ms"`
}

// ErrorData accompanies EventError.
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// UsageData summarizes ledger consumption at the point an event fired.
type UsageData struct {
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Cost      float64 `json:"cost"`
	ToolCalls int     `json:"tool_calls"`
}

// CompletionData accompanies EventCompletion.
type CompletionData struct {
	Response string    `json:"response"`
	Usage    UsageData `json:"usage"`
}

// NewEvent builds an Event, assigning an ID and timestamp if the caller
// leaves them zero.
func NewEvent(typ EventType, sessionID string, data any) Event {
	return normalizeEvent(Event{
		Type:      typ,
		SessionID: sessionID,
		Data:      data,
	})
}

// Validate rejects an Event missing fields required for routing.
func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event: type is empty")
	}
	if _, ok := channelForType(e.Type); !ok {
		return fmt.Errorf("%w: %s", errUnknownEvent, e.Type)
	}
	if e.ID == "" {
		return fmt.Errorf("event: id is empty")
	}
	return nil
}

// MarshalData re-encodes Data as a json.RawMessage, useful when an event
// crosses a boundary (HTTP, log sink) that wants the payload pre-serialized.
func (e Event) MarshalData() (json.RawMessage, error) {
	if e.Data == nil {
		return nil, nil
	}
	return json.Marshal(e.Data)
}

func normalizeEvent(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

func channelForType(t EventType) (Channel, bool) {
	switch t {
	case EventProgress, EventToolCall, EventToolResult:
		return ChannelProgress, true
	case EventCompletion:
		return ChannelControl, true
	case EventError:
		return ChannelMonitor, true
	default:
		return "", false
	}
}
