// Package agentrunner implements the Agent Runner: an iteration-based outer
// loop on top of the Orchestrator that feeds a task through repeated
// completions until a terminal tool (FINAL/FINAL_VAR) fires, a guardrail
// trips, or the caller cancels.
package agentrunner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencompletion/rce/pkg/orchestrator"
	"github.com/opencompletion/rce/pkg/session"
	"github.com/opencompletion/rce/pkg/toolkit"
	"github.com/opencompletion/rce/pkg/trajectory"
)

var tracer = otel.Tracer("github.com/opencompletion/rce/pkg/agentrunner")

const maxPreviousActions = 5

// Runner drives one Config's worth of iteration policy against an
// Orchestrator. A single Runner can be reused across multiple Run calls;
// each Run gets its own agentState and cancellation flag.
type Runner struct {
	orch     *orchestrator.Orchestrator
	registry *toolkit.Registry
	cfg      Config
}

// New builds a Runner bound to orch (used to drive each iteration's
// completion) and registry (consulted for an optional doc_search tool when
// AutoContext is enabled).
func New(orch *orchestrator.Orchestrator, registry *toolkit.Registry, cfg Config) *Runner {
	return &Runner{orch: orch, registry: registry, cfg: cfg.Normalize()}
}

// cancelFlag is a one-shot, concurrency-safe cancellation signal scoped to
// one Run call.
type cancelFlag struct{ v int32 }

func (c *cancelFlag) set()        { atomic.StoreInt32(&c.v, 1) }
func (c *cancelFlag) isSet() bool { return atomic.LoadInt32(&c.v) == 1 }

// Run builds a fresh per-call agentState, then drives iterations until
// termination, a guardrail trip, or cancellation.
func (r *Runner) Run(ctx context.Context, task string, sess *session.Session) (*Result, error) {
	if sess == nil {
		return nil, fmt.Errorf("agentrunner: session is required")
	}
	state := newAgentState()
	flag := &cancelFlag{}
	return r.run(ctx, task, sess, state, flag)
}

// Handle represents one in-flight or completed Run, started via Start. Its
// Cancel method is safe to call concurrently with the run itself; in-flight
// tool handlers are never forcibly interrupted (they complete), only the
// next iteration boundary is stopped.
type Handle struct {
	cancel func()
	done   chan struct{}
	result *Result
	err    error
}

// Cancel requests cancellation. It takes effect before the next iteration
// starts, never mid-iteration, and is safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the run finishes and returns its outcome.
func (h *Handle) Wait() (*Result, error) {
	<-h.done
	return h.result, h.err
}

// Start runs the task on a background goroutine and returns immediately
// with a Handle a caller can Cancel or Wait on, e.g. to hook up Cancel to
// an OS signal while the run is still in progress.
func (r *Runner) Start(ctx context.Context, task string, sess *session.Session) (*Handle, error) {
	if sess == nil {
		return nil, fmt.Errorf("agentrunner: session is required")
	}
	state := newAgentState()
	flag := &cancelFlag{}
	h := &Handle{cancel: flag.set, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		h.result, h.err = r.run(ctx, task, sess, state, flag)
	}()

	return h, nil
}

func (r *Runner) run(ctx context.Context, task string, sess *session.Session, state *agentState, flag *cancelFlag) (*Result, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.Timeout)*time.Second)
		defer cancel()
	}

	start := time.Now()
	recorder := trajectory.NewMemoryRecorder(nil)

	finalT := &finalTool{state: state}
	finalVarT := &finalVarTool{state: state, interp: sess.Interpreter()}
	terminalTools := []toolkit.Tool{finalT, finalVarT}

	var previousActions []string
	var lastResponse string
	var totalTokens, totalToolCalls int
	var totalCost float64

	for iteration := 1; iteration <= r.cfg.MaxIterations; iteration++ {
		if flag.isSet() {
			return r.finish(state, previousActions, lastResponse, true, false, iteration-1, totalTokens, totalToolCalls, totalCost, start, recorder), nil
		}
		if r.cfg.TokenBudget > 0 && totalTokens >= r.cfg.TokenBudget {
			break
		}
		if totalCost >= r.cfg.CostLimit {
			break
		}

		iterCtx, span := tracer.Start(ctx, "agentrunner.iteration", trace.WithAttributes(
			attribute.Int("iteration", iteration),
			attribute.Int("max_iterations", r.cfg.MaxIterations),
		))

		isFinal := iteration == r.cfg.MaxIterations
		system := ""
		if r.cfg.AutoContext && iteration == 1 {
			system = r.autoContext(iterCtx, task)
		}
		prompt := buildIterationPrompt(task, iteration, r.cfg.MaxIterations, previousActions, r.remainingTokens(totalTokens), isFinal)

		sliceTokens := r.perIterationTokenSlice(totalTokens)
		opts := orchestrator.Options{
			MaxDepth:          r.cfg.MaxDepth,
			TokenBudget:       sliceTokens,
			CostBudget:        r.cfg.CostLimit - totalCost,
			ToolBudget:        r.cfg.ToolBudget,
			TimeoutSeconds:    0, // the Runner's own context deadline governs wallclock
			ParallelTools:     r.cfg.ParallelTools,
			MaxParallel:       r.cfg.MaxParallel,
			ResponseFormat:    r.cfg.ResponseFormat,
			SubCallsEnabled:   r.cfg.SubCallsEnabled,
			MaxPerTurn:        r.cfg.MaxPerTurn,
			BudgetInheritance: r.cfg.BudgetInheritance,
			MaxCostPerSession: r.cfg.MaxCostPerSession,
			Model:             r.cfg.Model,
			Temperature:       r.cfg.Temperature,
		}

		res, err := r.orch.Complete(iterCtx, prompt, system, opts, terminalTools, recorder)
		if err != nil {
			span.RecordError(err)
			span.End()
			return nil, fmt.Errorf("agentrunner: iteration %d: %w", iteration, err)
		}

		lastResponse = res.Response
		totalTokens += res.TotalTokens
		totalToolCalls += res.TotalToolCalls
		totalCost += res.TotalCost

		previousActions = appendBounded(previousActions, summarizeIteration(res), maxPreviousActions)
		span.SetAttributes(attribute.Int("tokens_this_iteration", res.TotalTokens))
		span.End()

		if terminal, _, _, _ := state.snapshot(); terminal {
			return r.finish(state, previousActions, lastResponse, false, false, iteration, totalTokens, totalToolCalls, totalCost, start, recorder), nil
		}
	}

	return r.finish(state, previousActions, lastResponse, false, true, r.cfg.MaxIterations, totalTokens, totalToolCalls, totalCost, start, recorder), nil
}

func (r *Runner) finish(state *agentState, previousActions []string, lastResponse string, cancelled, forced bool, iterations, totalTokens, totalToolCalls int, totalCost float64, start time.Time, recorder trajectory.Recorder) *Result {
	terminal, terminalType, answer, value := state.snapshot()

	res := &Result{
		Iterations:     iterations,
		TotalTokens:    totalTokens,
		TotalToolCalls: totalToolCalls,
		TotalCost:      totalCost,
		Duration:       time.Since(start),
		Events:         recorder.Events(),
		Cancelled:      cancelled,
	}

	switch {
	case cancelled:
		res.Answer = "Agent was cancelled."
	case terminal:
		res.TerminalType = terminalType
		res.Answer = answer
		res.TerminalValue = value
	case forced:
		res.ForcedTermination = true
		res.TerminalType = TerminalForced
		if len(previousActions) > 0 {
			res.Answer = previousActions[len(previousActions)-1]
		} else {
			res.Answer = "No answer produced."
		}
	default:
		res.Answer = lastResponse
	}
	return res
}

// autoContext invokes a registered doc_search tool (if any) with the task
// as its query and returns its output to be merged into the system prompt.
// A missing tool or a failed lookup is not an error — auto-context is a
// best-effort enrichment, not a requirement.
func (r *Runner) autoContext(ctx context.Context, task string) string {
	if r.registry == nil {
		return ""
	}
	tool, err := r.registry.Get("doc_search")
	if err != nil {
		return ""
	}
	res, err := tool.Execute(ctx, map[string]interface{}{"query": task})
	if err != nil || !res.Success {
		return ""
	}
	return res.Output
}

func (r *Runner) remainingTokens(consumed int) int {
	if r.cfg.TokenBudget <= 0 {
		return 0
	}
	remaining := r.cfg.TokenBudget - consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// perIterationTokenSlice caps one iteration's Orchestrator call at
// min(remaining, 2*token_budget/max_iterations), leaving headroom for
// iterations that run under budget to spend more than their even share.
func (r *Runner) perIterationTokenSlice(consumed int) int {
	if r.cfg.TokenBudget <= 0 {
		return 0
	}
	remaining := r.remainingTokens(consumed)
	share := 2 * r.cfg.TokenBudget / r.cfg.MaxIterations
	if share <= 0 || remaining < share {
		return remaining
	}
	return share
}

func appendBounded(actions []string, next string, max int) []string {
	actions = append(actions, next)
	if len(actions) > max {
		actions = actions[len(actions)-max:]
	}
	return actions
}

func summarizeIteration(res orchestrator.Result) string {
	if len(res.Events) == 0 {
		return "no tool calls"
	}
	last := res.Events[len(res.Events)-1]
	if len(last.ToolCalls) == 0 {
		return "responded without calling a tool"
	}
	names := make([]string, 0, len(last.ToolCalls))
	for _, c := range last.ToolCalls {
		names = append(names, c.Name)
	}
	return fmt.Sprintf("called %v", names)
}

func buildIterationPrompt(task string, iteration, maxIterations int, previousActions []string, remainingTokens int, isFinal bool) string {
	prompt := fmt.Sprintf("Task: %s\n\nIteration %d/%d\n", task, iteration, maxIterations)
	if len(previousActions) > 0 {
		prompt += "\nPrevious actions:\n"
		for _, a := range previousActions {
			prompt += "- " + a + "\n"
		}
	}
	prompt += fmt.Sprintf("\nRemaining token budget: %d\n", remainingTokens)
	if isFinal {
		prompt += "\nThis is the final permitted iteration. You must call FINAL or FINAL_VAR now.\n"
	}
	return prompt
}
