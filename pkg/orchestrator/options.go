package orchestrator

import "github.com/opencompletion/rce/pkg/llm"

// Options carries every budget and policy knob a top-level Complete call
// accepts.
type Options struct {
	MaxDepth       int
	TokenBudget    int
	CostBudget     float64
	ToolBudget     int
	TimeoutSeconds int

	ParallelTools bool
	MaxParallel   int

	ResponseFormat *llm.ResponseFormat

	SubCallsEnabled   bool
	MaxPerTurn        int
	BudgetInheritance float64
	MaxCostPerSession float64

	MemoryEnabled bool
	AllowedPaths  []string

	Model       string
	Temperature *float64
}

const (
	defaultMaxPerTurn        = 5
	defaultBudgetInheritance = 0.5
	defaultMaxParallel       = 4
)

func (o Options) maxPerTurn() int {
	if o.MaxPerTurn > 0 {
		return o.MaxPerTurn
	}
	return defaultMaxPerTurn
}

func (o Options) budgetInheritance() float64 {
	if o.BudgetInheritance > 0 && o.BudgetInheritance <= 1 {
		return o.BudgetInheritance
	}
	return defaultBudgetInheritance
}

func (o Options) maxParallel() int {
	if o.MaxParallel > 0 {
		return o.MaxParallel
	}
	return defaultMaxParallel
}
