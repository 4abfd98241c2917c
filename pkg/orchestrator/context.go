package orchestrator

import "context"

type turnCallIDKey struct{}

// withTurnCallID tags ctx with the call_id of the turn currently dispatching
// tool calls, so a Sub-Completion Tool executed from within that dispatch
// can record its own events with the correct parent_call_id link.
func withTurnCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, turnCallIDKey{}, callID)
}

// turnCallIDFrom extracts the enclosing turn's call_id, if any.
func turnCallIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(turnCallIDKey{}).(string)
	return id
}
