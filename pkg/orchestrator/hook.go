package orchestrator

import "context"

// Hook lets a caller observe (never block, beyond returning an error) the
// key moments of a turn. Bus publication and span instrumentation both
// attach through this seam rather than being hard-wired into the loop
// itself.
type Hook interface {
	PreTurn(ctx context.Context, depth int) error
	PostTurn(ctx context.Context, depth int, responseText string) error
	PreToolCall(ctx context.Context, name string, params map[string]any) error
	PostToolCall(ctx context.Context, name string, success bool, durationMs int64) error
}

// NopHook is a zero-cost Hook implementation callers can embed to implement
// only the methods they care about.
type NopHook struct{}

func (NopHook) PreTurn(context.Context, int) error                         { return nil }
func (NopHook) PostTurn(context.Context, int, string) error                { return nil }
func (NopHook) PreToolCall(context.Context, string, map[string]any) error  { return nil }
func (NopHook) PostToolCall(context.Context, string, bool, int64) error    { return nil }

type hookList []Hook

func (hooks hookList) preTurn(ctx context.Context, depth int) error {
	for _, h := range hooks {
		if err := h.PreTurn(ctx, depth); err != nil {
			return err
		}
	}
	return nil
}

func (hooks hookList) postTurn(ctx context.Context, depth int, text string) error {
	for _, h := range hooks {
		if err := h.PostTurn(ctx, depth, text); err != nil {
			return err
		}
	}
	return nil
}

func (hooks hookList) preToolCall(ctx context.Context, name string, params map[string]any) error {
	for _, h := range hooks {
		if err := h.PreToolCall(ctx, name, params); err != nil {
			return err
		}
	}
	return nil
}

func (hooks hookList) postToolCall(ctx context.Context, name string, success bool, durationMs int64) error {
	for _, h := range hooks {
		if err := h.PostToolCall(ctx, name, success, durationMs); err != nil {
			return err
		}
	}
	return nil
}
