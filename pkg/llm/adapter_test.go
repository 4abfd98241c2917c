package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRateLimitErrorFormatting(t *testing.T) {
	withRetry := &RateLimitError{RetryAfterSeconds: 30, Err: errors.New("429")}
	if !strings.Contains(withRetry.Error(), "retry after 30s") {
		t.Fatalf("expected retry hint in error string, got %q", withRetry.Error())
	}

	bare := &RateLimitError{Err: errors.New("429")}
	if strings.Contains(bare.Error(), "retry after") {
		t.Fatalf("did not expect retry hint, got %q", bare.Error())
	}

	if !errors.Is(withRetry, ErrRateLimited) {
		t.Fatalf("expected RateLimitError to unwrap to ErrRateLimited")
	}
}

// stubAdapter is a minimal Adapter used to confirm the interface shape
// compiles against a realistic implementation outside the package.
type stubAdapter struct {
	result Result
	err    error
}

func (s *stubAdapter) Complete(ctx context.Context, messages []Message, tools []ToolDescriptor, opts Options) (Result, error) {
	return s.result, s.err
}

func (s *stubAdapter) Stream(ctx context.Context, messages []Message, opts Options, fn StreamFunc) error {
	if s.err != nil {
		return s.err
	}
	return fn(StreamChunk{Text: s.result.Text, Final: true, Usage: s.result.Usage})
}

func TestStubAdapterSatisfiesInterface(t *testing.T) {
	var a Adapter = &stubAdapter{result: Result{Text: "hi", Usage: Usage{InputTokens: 1, OutputTokens: 1}}}

	res, err := a.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, Options{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text != "hi" {
		t.Fatalf("text = %q", res.Text)
	}

	var gotFinal bool
	err = a.Stream(context.Background(), nil, Options{}, func(chunk StreamChunk) error {
		gotFinal = gotFinal || chunk.Final
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !gotFinal {
		t.Fatalf("expected a final chunk")
	}
}
