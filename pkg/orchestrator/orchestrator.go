// Package orchestrator implements the Recursive Completion Loop: the engine
// that drives one completion turn-by-turn (prompt, LLM call, tool dispatch,
// repeat) under a Budget Ledger, recording every turn to a Trajectory
// Recorder and recursing into itself via the Sub-Completion Tools.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencompletion/rce/pkg/ledger"
	"github.com/opencompletion/rce/pkg/llm"
	"github.com/opencompletion/rce/pkg/toolkit"
	"github.com/opencompletion/rce/pkg/trajectory"
)

// tracerName identifies spans emitted by this package to whatever
// TracerProvider the caller has configured globally (see otel.SetTracerProvider);
// with none configured, otel.Tracer returns a no-op tracer and Start costs
// nothing beyond a context value lookup.
const tracerName = "github.com/opencompletion/rce/pkg/orchestrator"

// CostEstimator prices a completed LLM call. Adapters report token usage
// only; cost estimation is an Orchestrator-level concern so it can be
// swapped per provider/model without touching the Adapter.
type CostEstimator func(model string, usage llm.Usage) float64

// ZeroCost is the default CostEstimator: every call is free. Callers that
// care about cost_budget enforcement supply a real pricing function.
func ZeroCost(string, llm.Usage) float64 { return 0 }

// Orchestrator drives completions against one Adapter and one global Tool
// Registry.
type Orchestrator struct {
	adapter  llm.Adapter
	registry *toolkit.Registry
	logger   zerolog.Logger
	hooks    hookList
	cost     CostEstimator
	tracer   trace.Tracer
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithLogger attaches a logger used for turn/tool diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithHook attaches a lifecycle Hook.
func WithHook(h Hook) Option {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, h) }
}

// WithCostEstimator overrides the default zero-cost pricing function.
func WithCostEstimator(fn CostEstimator) Option {
	return func(o *Orchestrator) { o.cost = fn }
}

// WithTracer overrides the package-default tracer (otel.Tracer(tracerName)),
// e.g. to inject one already bound to a specific TracerProvider in tests.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// New constructs an Orchestrator bound to adapter and registry.
func New(adapter llm.Adapter, registry *toolkit.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		adapter:  adapter,
		registry: registry,
		logger:   zerolog.Nop(),
		cost:     ZeroCost,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Complete drives one top-level completion to termination.
func (o *Orchestrator) Complete(ctx context.Context, prompt string, system string, opts Options, extras []toolkit.Tool, recorder trajectory.Recorder) (Result, error) {
	if recorder == nil {
		recorder = trajectory.NewMemoryRecorder(nil)
	}

	led := ledger.New(ledger.Caps{
		TokenBudget: opts.TokenBudget,
		CostBudget:  opts.CostBudget,
		ToolBudget:  opts.ToolBudget,
		MaxDepth:    opts.MaxDepth,
	}, time.Duration(opts.TimeoutSeconds)*time.Second)

	trajID := trajectory.NewTrajectoryID()
	messages := initialMessages(system, prompt)

	guard := newSubCompletionGuard(opts)

	start := time.Now()
	responseText, violation, err := o.runLoop(ctx, led, recorder, trajID, "", 0, messages, opts, extras, "", guard)
	duration := time.Since(start)
	if err != nil {
		return Result{}, err
	}

	events := recorder.Events()
	return Result{
		Response:       responseText,
		TrajectoryID:   trajID,
		TotalCalls:     len(events),
		TotalTokens:    recorder.TotalTokens(),
		TotalToolCalls: recorder.TotalToolCalls(),
		Duration:       duration,
		TotalCost:      recorder.TotalCost(),
		Events:         events,
		Violation:      violation,
	}, nil
}

func initialMessages(system, prompt string) []llm.Message {
	var messages []llm.Message
	if system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})
	return messages
}

// runLoop is the internal turn loop, reentered by sub_complete/batch_complete
// at depth+1 against a derived ledger and the same recorder/trajectory so
// their events splice into the outer trajectory.
func (o *Orchestrator) runLoop(
	ctx context.Context,
	led *ledger.Ledger,
	recorder trajectory.Recorder,
	trajID string,
	parentCallID string,
	depth int,
	messages []llm.Message,
	opts Options,
	extras []toolkit.Tool,
	subCallType string,
	guard *subCompletionGuard,
) (string, *ledger.Violation, error) {
	var lastResponse string

	for {
		if v := led.Check(); v != nil {
			return lastResponse, v, nil
		}
		if err := o.hooks.preTurn(ctx, depth); err != nil {
			return lastResponse, nil, err
		}

		turnCtx, span := o.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
			attribute.Int("depth", depth),
			attribute.String("sub_call_type", subCallType),
			attribute.String("trajectory_id", trajID),
		))

		guard.resetTurn()
		turnExtras := extras
		if opts.SubCallsEnabled {
			turnExtras = append(append([]toolkit.Tool{}, extras...), o.subCompletionTools(led, recorder, trajID, depth, opts, guard)...)
		}

		descriptors := toDescriptors(o.registry.List(), turnExtras)

		turnStart := time.Now()
		result, err := o.adapter.Complete(turnCtx, messages, descriptors, llmOptions(opts))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return lastResponse, nil, fmt.Errorf("orchestrator: llm adapter: %w", err)
		}
		turnDuration := time.Since(turnStart)
		span.SetAttributes(
			attribute.Int("input_tokens", result.Usage.InputTokens),
			attribute.Int("output_tokens", result.Usage.OutputTokens),
			attribute.Int("tool_calls", len(result.ToolCalls)),
		)
		span.End()

		led.Charge(result.Usage.InputTokens, result.Usage.OutputTokens, o.cost(opts.Model, result.Usage))
		lastResponse = result.Text

		callID := trajectory.NewCallID()
		assistantMsg := llm.Message{Role: "assistant", Content: result.Text, ToolCalls: result.ToolCalls}
		messages = append(messages, assistantMsg)

		if err := o.hooks.postTurn(ctx, depth, result.Text); err != nil {
			return lastResponse, nil, err
		}

		if len(result.ToolCalls) == 0 {
			evt := trajectory.Event{
				TrajectoryID:   trajID,
				CallID:         callID,
				ParentCallID:   parentCallID,
				Depth:          depth,
				PromptSnapshot: messages,
				ResponseText:   result.Text,
				ToolCalls:      result.ToolCalls,
				InputTokens:    result.Usage.InputTokens,
				OutputTokens:   result.Usage.OutputTokens,
				Duration:       turnDuration,
				Timestamp:      time.Now().UTC(),
				EstimatedCost:  o.cost(opts.Model, result.Usage),
				SubCallType:    subCallType,
			}
			if err := recorder.Record(evt); err != nil {
				return lastResponse, nil, fmt.Errorf("orchestrator: record event: %w", err)
			}
			return result.Text, nil, nil
		}

		toolCallCtx := withTurnCallID(ctx, callID)
		toolResults, interpResults := o.dispatchTools(toolCallCtx, led, turnExtras, result.ToolCalls, opts)
		for _, tr := range toolResults {
			messages = append(messages, llm.Message{Role: "tool", Content: tr.Content, ToolCallID: tr.ToolCallID})
		}

		evt := trajectory.Event{
			TrajectoryID:       trajID,
			CallID:             callID,
			ParentCallID:       parentCallID,
			Depth:              depth,
			PromptSnapshot:     messages,
			ResponseText:       result.Text,
			ToolCalls:          result.ToolCalls,
			ToolResults:        toolResults,
			InterpreterResults: interpResults,
			InputTokens:        result.Usage.InputTokens,
			OutputTokens:       result.Usage.OutputTokens,
			Duration:           turnDuration,
			Timestamp:          time.Now().UTC(),
			EstimatedCost:      o.cost(opts.Model, result.Usage),
			SubCallType:        subCallType,
		}
		if err := recorder.Record(evt); err != nil {
			return lastResponse, nil, fmt.Errorf("orchestrator: record event: %w", err)
		}
	}
}

// dispatchTools invokes every tool call, sequentially or under a bounded
// semaphore per opts.ParallelTools. tool_results are always returned
// ordered by the original tool_call order regardless of dispatch or
// completion order.
func (o *Orchestrator) dispatchTools(ctx context.Context, led *ledger.Ledger, extras []toolkit.Tool, calls []llm.ToolCall, opts Options) ([]trajectory.ToolResultEvent, []trajectory.InterpreterResultEvent) {
	results := make([]trajectory.ToolResultEvent, len(calls))
	interpSlots := make([]*trajectory.InterpreterResultEvent, len(calls))

	invoke := func(i int) {
		call := calls[i]
		_ = o.hooks.preToolCall(ctx, call.Name, call.Arguments)
		start := time.Now()
		res, err := o.registry.Execute(ctx, extras, call.Name, call.Arguments)
		led.ChargeToolCall()
		duration := time.Since(start)
		durationMs := duration.Milliseconds()

		if err != nil {
			results[i] = trajectory.ToolResultEvent{ToolCallID: call.ID, Content: err.Error(), IsError: true}
			_ = o.hooks.postToolCall(ctx, call.Name, false, durationMs)
			return
		}
		content := res.Output
		isError := !res.Success
		errMsg := ""
		if res.Error != nil {
			content = res.Error.Error()
			errMsg = res.Error.Error()
			isError = true
		}
		results[i] = trajectory.ToolResultEvent{ToolCallID: call.ID, Content: content, IsError: isError}
		if call.Name == "execute_code" {
			interpSlots[i] = &trajectory.InterpreterResultEvent{
				ToolCallID: call.ID,
				Output:     res.Output,
				Error:      errMsg,
				Duration:   duration,
				Truncated:  res.Truncated,
			}
		}
		_ = o.hooks.postToolCall(ctx, call.Name, !isError, durationMs)
	}

	collect := func() []trajectory.InterpreterResultEvent {
		var out []trajectory.InterpreterResultEvent
		for _, s := range interpSlots {
			if s != nil {
				out = append(out, *s)
			}
		}
		return out
	}

	if !opts.ParallelTools || len(calls) <= 1 {
		for i := range calls {
			invoke(i)
		}
		return results, collect()
	}

	sem := semaphore.NewWeighted(int64(opts.maxParallel()))
	var g errgroup.Group
	for i := range calls {
		i := i
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = trajectory.ToolResultEvent{ToolCallID: calls[i].ID, Content: err.Error(), IsError: true}
				return nil
			}
			defer sem.Release(1)
			invoke(i)
			return nil
		})
	}
	_ = g.Wait()
	return results, collect()
}

func llmOptions(opts Options) llm.Options {
	return llm.Options{
		Model:          opts.Model,
		Temperature:    opts.Temperature,
		ResponseFormat: opts.ResponseFormat,
	}
}

func toDescriptors(registryTools []toolkit.Tool, extras []toolkit.Tool) []llm.ToolDescriptor {
	seen := make(map[string]struct{}, len(registryTools)+len(extras))
	out := make([]llm.ToolDescriptor, 0, len(registryTools)+len(extras))

	add := func(t toolkit.Tool) {
		if t == nil {
			return
		}
		if _, ok := seen[t.Name()]; ok {
			return
		}
		seen[t.Name()] = struct{}{}
		out = append(out, llm.ToolDescriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  schemaToParameters(t.Schema()),
		})
	}

	for _, t := range extras {
		add(t)
	}
	for _, t := range registryTools {
		add(t)
	}
	return out
}

func schemaToParameters(s *toolkit.JSONSchema) map[string]any {
	if s == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	m := map[string]any{"type": s.Type}
	if s.Properties != nil {
		m["properties"] = s.Properties
	} else {
		m["properties"] = map[string]any{}
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}

// subCompletionGuard enforces the per-turn and session-level caps on
// sub-completion tool usage for one turn loop. A sub-call's nested loop runs
// under its own guard (see runSubComplete), seeded with the session cost
// spent so far, so nested turns never reset the calling turn's count; the
// calling guard adds the sub-call's whole cost once it returns.
type subCompletionGuard struct {
	mu                sync.Mutex
	perTurnCount      int
	maxPerTurn        int
	sessionCost       float64
	maxCostPerSession float64
}

func newSubCompletionGuard(opts Options) *subCompletionGuard {
	return &subCompletionGuard{maxPerTurn: opts.maxPerTurn(), maxCostPerSession: opts.MaxCostPerSession}
}

func (g *subCompletionGuard) resetTurn() {
	g.mu.Lock()
	g.perTurnCount = 0
	g.mu.Unlock()
}

func (g *subCompletionGuard) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.perTurnCount >= g.maxPerTurn {
		return false
	}
	g.perTurnCount++
	return true
}

func (g *subCompletionGuard) sessionCostExceeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxCostPerSession > 0 && g.sessionCost >= g.maxCostPerSession
}

func (g *subCompletionGuard) addSessionCost(c float64) {
	g.mu.Lock()
	g.sessionCost += c
	g.mu.Unlock()
}
