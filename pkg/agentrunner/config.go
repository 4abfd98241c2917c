package agentrunner

import "github.com/opencompletion/rce/pkg/llm"

const (
	maxIterationsCeiling = 50
	maxDepthCeiling      = 5
	costLimitCeiling     = 10.00
	timeoutCeiling       = 600

	defaultMaxIterations = 10
	defaultTimeout       = 120
)

// Config stores the runtime settings for one Agent Runner. Every ceiling
// field is silently clamped at construction (NewConfig/Normalize) rather
// than rejected — a caller-supplied 10000 for max_iterations becomes 50,
// it never errors.
type Config struct {
	MaxIterations int
	MaxDepth      int
	TokenBudget   int
	CostLimit     float64
	Timeout       int // seconds
	ToolBudget    int

	AutoContext   bool
	ContextBudget int
	TrajectoryLog bool

	SubCallsEnabled   bool
	ParallelTools     bool
	MaxParallel       int
	MaxPerTurn        int
	BudgetInheritance float64
	MaxCostPerSession float64

	Model          string
	Temperature    *float64
	ResponseFormat *llm.ResponseFormat
}

// Normalize clamps every bounded field in place and fills in defaults for
// unset ones, returning the adjusted Config.
func (c Config) Normalize() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = defaultMaxIterations
	}
	if c.MaxIterations > maxIterationsCeiling {
		c.MaxIterations = maxIterationsCeiling
	}
	if c.MaxDepth <= 0 || c.MaxDepth > maxDepthCeiling {
		c.MaxDepth = maxDepthCeiling
	}
	if c.CostLimit <= 0 || c.CostLimit > costLimitCeiling {
		c.CostLimit = costLimitCeiling
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Timeout > timeoutCeiling {
		c.Timeout = timeoutCeiling
	}
	return c
}

// NewConfig builds a Normalize'd Config from caller-supplied values.
func NewConfig(c Config) Config {
	return c.Normalize()
}
