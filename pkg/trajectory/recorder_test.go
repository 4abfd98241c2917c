package trajectory

import (
	"testing"

	"github.com/opencompletion/rce/pkg/llm"
)

func TestMemoryRecorderAccumulatesTotals(t *testing.T) {
	rec := NewMemoryRecorder(nil)

	traj := NewTrajectoryID()
	root := NewCallID()
	if err := rec.Record(Event{
		TrajectoryID: traj,
		CallID:       root,
		Depth:        0,
		ToolCalls:    []llm.ToolCall{{ID: "c1", Name: "echo"}},
		InputTokens:  10,
		OutputTokens: 5,
		EstimatedCost: 0.01,
	}); err != nil {
		t.Fatalf("record root: %v", err)
	}

	child := NewCallID()
	if err := rec.Record(Event{
		TrajectoryID:  traj,
		CallID:        child,
		ParentCallID:  root,
		Depth:         1,
		InputTokens:   3,
		OutputTokens:  2,
		EstimatedCost: 0.002,
		SubCallType:   "sub_complete",
	}); err != nil {
		t.Fatalf("record child: %v", err)
	}

	events := rec.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].ParentCallID != root {
		t.Fatalf("expected child to reference root call id")
	}
	if got := rec.TotalTokens(); got != 20 {
		t.Fatalf("total tokens = %d", got)
	}
	if got := rec.TotalToolCalls(); got != 1 {
		t.Fatalf("total tool calls = %d", got)
	}
	if got := rec.TotalCost(); got < 0.0119 || got > 0.0121 {
		t.Fatalf("total cost = %v", got)
	}
}

func TestMemoryRecorderEventsAreDefensiveCopies(t *testing.T) {
	rec := NewMemoryRecorder(nil)
	if err := rec.Record(Event{TrajectoryID: "t", CallID: "c"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	events := rec.Events()
	events[0].ResponseText = "mutated"

	if rec.Events()[0].ResponseText == "mutated" {
		t.Fatalf("expected Events() to return a defensive copy")
	}
}
