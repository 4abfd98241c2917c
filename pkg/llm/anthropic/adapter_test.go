package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opencompletion/rce/pkg/llm"
)

func TestAdapterCompleteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "claude-test" {
			t.Fatalf("model = %s", req.Model)
		}
		resp := messageResponse{
			Role: "assistant",
			Content: []contentBlock{
				{Type: "text", Text: "hello there"},
			},
			Usage: usagePayload{InputTokens: 12, OutputTokens: 4},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	adapter, err := New(Config{APIKey: "key", Model: "claude-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	res, err := adapter.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, llm.Options{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text != "hello there" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Usage.InputTokens != 12 || res.Usage.OutputTokens != 4 {
		t.Fatalf("usage = %+v", res.Usage)
	}
}

func TestAdapterCompleteToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := messageResponse{
			Role: "assistant",
			Content: []contentBlock{
				{Type: "tool_use", ID: "call-1", Name: "echo", Input: map[string]any{"msg": "hi"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	adapter, err := New(Config{APIKey: "key", Model: "claude-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	res, err := adapter.Complete(context.Background(), nil, []llm.ToolDescriptor{{Name: "echo", Parameters: map[string]any{"type": "object"}}}, llm.Options{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Name != "echo" {
		t.Fatalf("tool calls = %+v", res.ToolCalls)
	}
}

func TestAdapterCompleteAuthErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Type: "authentication_error", Message: "bad key"}})
	}))
	defer srv.Close()

	adapter, err := New(Config{APIKey: "key", Model: "claude-test", BaseURL: srv.URL, MaxRetries: 2})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	_, err = adapter.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, llm.Options{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt for a permanent auth error, got %d", calls)
	}
}

func TestAdapterCompleteRateLimitedRetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Type: "rate_limit_error", Message: "slow down"}})
			return
		}
		_ = json.NewEncoder(w).Encode(messageResponse{Role: "assistant", Content: []contentBlock{{Type: "text", Text: "ok"}}})
	}))
	defer srv.Close()

	adapter, err := New(Config{APIKey: "key", Model: "claude-test", BaseURL: srv.URL, MaxRetries: 3})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	res, err := adapter.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil, llm.Options{})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text != "ok" {
		t.Fatalf("text = %q", res.Text)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestAdapterStreamAssemblesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		write := func(event, data string) {
			_, _ = w.Write([]byte("event: " + event + "\ndata: " + data + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
		write("content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"hel"}}`)
		write("content_block_delta", `{"type":"content_block_delta","delta":{"type":"text_delta","text":"lo"}}`)
		write("message_stop", `{"type":"message_stop"}`)
	}))
	defer srv.Close()

	adapter, err := New(Config{APIKey: "key", Model: "claude-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	var full string
	var finalSeen bool
	err = adapter.Stream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, llm.Options{}, func(chunk llm.StreamChunk) error {
		if chunk.Final {
			finalSeen = true
			full = chunk.Text
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !finalSeen {
		t.Fatalf("expected final chunk")
	}
	if full != "hello" {
		t.Fatalf("assembled text = %q", full)
	}
}
