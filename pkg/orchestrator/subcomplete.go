package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/opencompletion/rce/pkg/ledger"
	"github.com/opencompletion/rce/pkg/toolkit"
	"github.com/opencompletion/rce/pkg/trajectory"
)

const maxRecursionSentinel = "Maximum recursion depth reached; summarize with available context"

// subCompletionTools builds the sub_complete/batch_complete extras for one
// turn at the given depth, bound to the ledger/recorder/trajectory of the
// call that is about to dispatch them.
func (o *Orchestrator) subCompletionTools(led *ledger.Ledger, recorder trajectory.Recorder, trajID string, depth int, opts Options, guard *subCompletionGuard) []toolkit.Tool {
	return []toolkit.Tool{
		&subCompleteTool{o: o, led: led, recorder: recorder, trajID: trajID, depth: depth, opts: opts, guard: guard},
		&batchCompleteTool{o: o, led: led, recorder: recorder, trajID: trajID, depth: depth, opts: opts, guard: guard},
	}
}

type subCompleteTool struct {
	o        *Orchestrator
	led      *ledger.Ledger
	recorder trajectory.Recorder
	trajID   string
	depth    int
	opts     Options
	guard    *subCompletionGuard
}

func (t *subCompleteTool) Name() string        { return "sub_complete" }
func (t *subCompleteTool) Description() string { return "Recursively complete a focused sub-query with an inherited budget." }

func (t *subCompleteTool) Schema() *toolkit.JSONSchema {
	return &toolkit.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"query":         map[string]interface{}{"type": "string", "description": "the sub-task to complete"},
			"max_tokens":    map[string]interface{}{"type": "integer", "description": "token ceiling requested for the sub-call"},
			"system":        map[string]interface{}{"type": "string", "description": "optional system prompt override"},
			"context_query": map[string]interface{}{"type": "string", "description": "optional query to run against documentation retrieval first"},
		},
		Required: []string{"query"},
	}
}

func (t *subCompleteTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.ToolResult, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return &toolkit.ToolResult{Success: false, Error: fmt.Errorf("sub_complete: query is required")}, nil
	}
	maxTokens := intParam(params, "max_tokens")
	system, _ := params["system"].(string)
	contextQuery, _ := params["context_query"].(string)

	parentCallID := turnCallIDFrom(ctx)
	text, err := t.o.runSubComplete(ctx, t.led, t.recorder, t.trajID, parentCallID, t.depth, t.opts, t.guard, query, maxTokens, system, contextQuery)
	if err != nil {
		return &toolkit.ToolResult{Success: false, Error: err}, nil
	}
	return &toolkit.ToolResult{Success: true, Output: text}, nil
}

type batchCompleteTool struct {
	o        *Orchestrator
	led      *ledger.Ledger
	recorder trajectory.Recorder
	trajID   string
	depth    int
	opts     Options
	guard    *subCompletionGuard
}

func (t *batchCompleteTool) Name() string { return "batch_complete" }
func (t *batchCompleteTool) Description() string {
	return "Run several sub_complete queries concurrently, splitting a total token budget evenly."
}

func (t *batchCompleteTool) Schema() *toolkit.JSONSchema {
	return &toolkit.JSONSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"queries":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"max_parallel": map[string]interface{}{"type": "integer"},
			"total_budget": map[string]interface{}{"type": "integer"},
		},
		Required: []string{"queries", "total_budget"},
	}
}

func (t *batchCompleteTool) Execute(ctx context.Context, params map[string]interface{}) (*toolkit.ToolResult, error) {
	queries := stringSliceParam(params, "queries")
	if len(queries) == 0 {
		return &toolkit.ToolResult{Success: false, Error: fmt.Errorf("batch_complete: queries must be non-empty")}, nil
	}
	totalBudget := intParam(params, "total_budget")
	maxParallel := intParam(params, "max_parallel")
	if maxParallel <= 0 {
		maxParallel = t.opts.maxParallel()
	}
	share := 0
	if totalBudget > 0 {
		share = totalBudget / len(queries)
	}

	results := make([]string, len(queries))
	errs := make([]error, len(queries))
	parentCallID := turnCallIDFrom(ctx)

	sem := semaphore.NewWeighted(int64(maxParallel))
	var g errgroup.Group
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				errs[i] = err
				return nil
			}
			defer sem.Release(1)
			text, err := t.o.runSubComplete(ctx, t.led, t.recorder, t.trajID, parentCallID, t.depth, t.opts, t.guard, q, share, "", "")
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = text
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			results[i] = fmt.Sprintf("error: %v", err)
		}
	}

	return &toolkit.ToolResult{Success: true, Data: results, Output: joinResults(results)}, nil
}

// runSubComplete derives a child ledger from led at the requested token
// ceiling (clamped to remaining x inheritance_factor), re-enters the turn
// loop one depth deeper, and rolls the child's consumption back onto led.
func (o *Orchestrator) runSubComplete(
	ctx context.Context,
	led *ledger.Ledger,
	recorder trajectory.Recorder,
	trajID string,
	parentCallID string,
	depth int,
	opts Options,
	guard *subCompletionGuard,
	query string,
	maxTokens int,
	system string,
	contextQuery string,
) (string, error) {
	if opts.MaxDepth > 0 && depth+1 > opts.MaxDepth {
		return maxRecursionSentinel, nil
	}
	if !guard.allow() {
		return "", fmt.Errorf("sub_complete: per-turn sub-call limit (%d) exceeded", opts.maxPerTurn())
	}
	if guard.sessionCostExceeded() {
		return "", fmt.Errorf("sub_complete: session cost cap ($%.2f) exceeded", opts.MaxCostPerSession)
	}

	if contextQuery != "" {
		if docTool, err := o.registry.Get("doc_search"); err == nil {
			if res, err := docTool.Execute(ctx, map[string]interface{}{"query": contextQuery}); err == nil && res.Success {
				if system != "" {
					system = res.Output + "\n\n" + system
				} else {
					system = res.Output
				}
			}
		}
	}

	fraction := opts.budgetInheritance()
	if remaining := led.State().RemainingTokens; remaining > 0 && maxTokens > 0 {
		target := float64(remaining) * fraction
		if float64(maxTokens) < target {
			fraction = float64(maxTokens) / float64(remaining)
		}
	}
	child := led.Derive(fraction)
	childGuard := newSubCompletionGuard(opts)
	guard.mu.Lock()
	childGuard.sessionCost = guard.sessionCost
	guard.mu.Unlock()

	messages := initialMessages(system, query)
	text, _, err := o.runLoop(ctx, child, recorder, trajID, parentCallID, depth+1, messages, opts, nil, "sub_complete", childGuard)
	if err != nil {
		return "", err
	}

	st := child.State()
	led.Charge(st.TokensIn, st.TokensOut, st.Cost)
	for i := 0; i < st.ToolCalls; i++ {
		led.ChargeToolCall()
	}
	guard.addSessionCost(st.Cost)

	return text, nil
}

func intParam(params map[string]interface{}, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key].([]interface{})
	if !ok {
		if direct, ok := params[key].([]string); ok {
			return direct
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func joinResults(results []string) string {
	out := ""
	for i, r := range results {
		if i > 0 {
			out += "\n---\n"
		}
		out += r
	}
	return out
}
