// Command rce runs one Agent Runner task against the Anthropic adapter,
// wiring together the Budget Ledger, Tool Registry, Interpreter Sandbox,
// Session Manager and Orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/opencompletion/rce/pkg/agentrunner"
	"github.com/opencompletion/rce/pkg/llm/anthropic"
	"github.com/opencompletion/rce/pkg/orchestrator"
	"github.com/opencompletion/rce/pkg/session"
	"github.com/opencompletion/rce/pkg/toolkit"
	toolbuiltin "github.com/opencompletion/rce/pkg/toolkit/builtin"
)

func main() {
	var (
		task          = flag.String("task", "", "task for the agent to complete")
		model         = flag.String("model", "claude-3-5-sonnet-20241022", "Anthropic model name")
		sessionID     = flag.String("session", "default", "session id for interpreter/transcript state")
		maxIterations = flag.Int("max-iterations", 10, "agent runner iteration cap (hard-clamped to 50)")
		tokenBudget   = flag.Int("token-budget", 20000, "total token budget for the run")
	)
	flag.Parse()

	if *task == "" {
		fmt.Fprintln(os.Stderr, "rce: -task is required")
		os.Exit(2)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// A provider with no span processor attached still lets every
	// orchestrator.turn/agentrunner.iteration span be created and ended
	// correctly; wiring a real exporter (OTLP, stdout) is a deployment
	// decision, not something this CLI should hardcode.
	otel.SetTracerProvider(sdktrace.NewTracerProvider())

	if err := run(*task, *model, *sessionID, *maxIterations, *tokenBudget, logger); err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(task, model, sessionID string, maxIterations, tokenBudget int, logger zerolog.Logger) error {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("rce: ANTHROPIC_API_KEY is not set")
	}

	adapter, err := anthropic.New(anthropic.Config{
		APIKey:            apiKey,
		Model:             model,
		Logger:            &logger,
		RequestsPerSecond: 2,
	})
	if err != nil {
		return fmt.Errorf("rce: build adapter: %w", err)
	}

	registry := toolkit.NewRegistry()

	sessions, err := session.NewManager(64, session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("rce: build session manager: %w", err)
	}
	defer sessions.Close()

	sess, err := sessions.GetOrCreate(sessionID)
	if err != nil {
		return fmt.Errorf("rce: get session: %w", err)
	}
	if err := registry.Register(toolbuiltin.NewExecuteCodeTool(sess)); err != nil {
		return fmt.Errorf("rce: register execute_code: %w", err)
	}

	orch := orchestrator.New(adapter, registry, orchestrator.WithLogger(logger))
	runner := agentrunner.New(orch, registry, agentrunner.Config{
		MaxIterations:   maxIterations,
		TokenBudget:     tokenBudget,
		CostLimit:       10.00,
		AutoContext:     false,
		SubCallsEnabled: true,
		Model:           model,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := runner.Start(ctx, task, sess)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		handle.Cancel()
	}()

	res, err := handle.Wait()
	if err != nil {
		return err
	}

	fmt.Println(res.Answer)
	logger.Info().
		Int("iterations", res.Iterations).
		Int("total_tokens", res.TotalTokens).
		Float64("total_cost", res.TotalCost).
		Str("terminal_type", string(res.TerminalType)).
		Bool("forced_termination", res.ForcedTermination).
		Msg("run complete")
	return nil
}
