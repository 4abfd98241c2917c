package orchestrator

import (
	"time"

	"github.com/opencompletion/rce/pkg/ledger"
	"github.com/opencompletion/rce/pkg/trajectory"
)

// Result is returned by one top-level Complete call. It is constructible
// even on a budget violation — the partial Result always reflects whatever
// was recorded before the failure.
type Result struct {
	Response       string
	TrajectoryID   string
	TotalCalls     int
	TotalTokens    int
	TotalToolCalls int
	Duration       time.Duration
	TotalCost      float64
	Events         []trajectory.Event
	Parsed         map[string]any

	// Violation is non-nil when the completion terminated abnormally due to
	// a budget breach rather than the model simply stopping on its own.
	Violation *ledger.Violation
}
