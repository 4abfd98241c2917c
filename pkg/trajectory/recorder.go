package trajectory

import (
	"sync"

	"github.com/opencompletion/rce/pkg/event"
)

// MemoryRecorder is an in-memory, append-only Recorder. It optionally emits
// each recorded Event onto an event.EventBus, making it the bridge between
// the Orchestrator's internal bookkeeping and the external progress stream;
// the sink format is left entirely to the caller.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
	bus    *event.EventBus
}

// NewMemoryRecorder constructs a MemoryRecorder. bus may be nil, in which
// case events are only kept in memory and never published.
func NewMemoryRecorder(bus *event.EventBus) *MemoryRecorder {
	return &MemoryRecorder{bus: bus}
}

// Record appends evt and, if a bus is attached, publishes a progress event
// summarizing it. A publish failure is swallowed (logged by the caller via
// the bus's own channel wiring) since the trajectory itself must never be
// lost over a downstream subscriber hiccup.
func (r *MemoryRecorder) Record(evt Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()

	if r.bus == nil {
		return nil
	}

	data := event.ProgressData{
		Depth:   evt.Depth,
		Message: evt.ResponseText,
	}
	_ = r.bus.Emit(event.NewEvent(event.EventProgress, evt.TrajectoryID, data))
	return nil
}

// Events returns a defensive copy of the recorded events in creation order.
func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// TotalTokens sums InputTokens+OutputTokens across all recorded events.
func (r *MemoryRecorder) TotalTokens() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.events {
		total += e.InputTokens + e.OutputTokens
	}
	return total
}

// TotalCost sums EstimatedCost across all recorded events.
func (r *MemoryRecorder) TotalCost() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0.0
	for _, e := range r.events {
		total += e.EstimatedCost
	}
	return total
}

// TotalToolCalls sums len(ToolCalls) across all recorded events.
func (r *MemoryRecorder) TotalToolCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, e := range r.events {
		total += len(e.ToolCalls)
	}
	return total
}
