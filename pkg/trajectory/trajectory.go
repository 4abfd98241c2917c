// Package trajectory implements the Trajectory Recorder: an append-only
// event tree capturing every turn of a completion, with parent/child links
// across sub-completion boundaries.
package trajectory

import (
	"time"

	"github.com/google/uuid"

	"github.com/opencompletion/rce/pkg/llm"
)

// ToolResultEvent is the recorded outcome of one tool dispatch within a turn.
type ToolResultEvent struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// InterpreterResultEvent is the recorded outcome of one interpreter
// execution dispatched as a tool within a turn.
type InterpreterResultEvent struct {
	ToolCallID string
	Output     string
	Error      string
	Duration   time.Duration
	Truncated  bool
	PeakMemory *int64
	CPUTime    *time.Duration
}

// Event is a single, immutable turn record. An Event is created once by the
// Orchestrator and never mutated after emission.
type Event struct {
	TrajectoryID string
	CallID       string
	ParentCallID string // empty for the root call of a trajectory

	Depth int

	PromptSnapshot []llm.Message
	ResponseText   string
	ToolCalls          []llm.ToolCall
	ToolResults        []ToolResultEvent
	InterpreterResults []InterpreterResultEvent

	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	Timestamp    time.Time

	Error         string
	EstimatedCost float64

	// SubCallType tags events produced inside a sub_complete/batch_complete
	// dispatch, e.g. "sub_complete" or "batch_complete"; empty at the root.
	SubCallType string
}

// NewCallID mints a fresh call_id for a turn about to be recorded.
func NewCallID() string { return uuid.NewString() }

// NewTrajectoryID mints a fresh trajectory_id for a top-level completion.
func NewTrajectoryID() string { return uuid.NewString() }

// Recorder accumulates Events for one trajectory in creation order and
// exposes them as a flat, read-only list plus running totals; the tree shape
// is carried only by each Event's CallID/ParentCallID links.
type Recorder interface {
	// Record appends evt to the trajectory. Implementations must not mutate
	// evt afterward.
	Record(evt Event) error
	// Events returns every recorded event, in creation order.
	Events() []Event
	// TotalTokens sums InputTokens+OutputTokens across all recorded events.
	TotalTokens() int
	// TotalCost sums EstimatedCost across all recorded events.
	TotalCost() float64
	// TotalToolCalls sums len(ToolCalls) across all recorded events.
	TotalToolCalls() int
}
