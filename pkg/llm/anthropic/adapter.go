// Package anthropic implements the LLM Adapter contract against Anthropic's
// Messages API: the Orchestrator's only provider-facing dependency.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/opencompletion/rce/pkg/llm"
)

var _ llm.Adapter = (*Adapter)(nil)

// Config configures an Adapter instance.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Headers map[string]string

	HTTPClient *http.Client
	// Logger receives retry/diagnostic messages. Nil disables logging.
	Logger *zerolog.Logger

	// RequestsPerSecond bounds the adapter's own outbound call rate, ahead
	// of the provider returning a 429. Zero disables client-side limiting.
	RequestsPerSecond float64
	// MaxRetries bounds the number of retries for transient connection and
	// rate_limited errors. Zero selects a default of 3.
	MaxRetries uint64
}

// Adapter is a concrete llm.Adapter backed by Anthropic's Messages API.
type Adapter struct {
	client  *http.Client
	baseURL string
	model   string
	headers map[string]string
	logger  zerolog.Logger

	limiter    *rate.Limiter
	maxRetries uint64
}

// New constructs an Adapter from cfg.
func New(cfg Config) (*Adapter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("anthropic: model name is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout * time.Second}
	}

	headers := map[string]string{
		"X-API-Key":         apiKey,
		"Anthropic-Version": anthropicVersion,
		"Content-Type":      "application/json",
		"User-Agent":        userAgent,
	}
	for k, v := range cfg.Headers {
		if strings.TrimSpace(k) == "" || v == "" {
			continue
		}
		headers[k] = v
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Adapter{
		client:     client,
		baseURL:    sanitizeBaseURL(cfg.BaseURL),
		model:      model,
		headers:    headers,
		logger:     logger,
		limiter:    limiter,
		maxRetries: maxRetries,
	}, nil
}

// Complete performs a single (possibly retried) blocking Messages API call.
func (a *Adapter) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDescriptor, opts llm.Options) (llm.Result, error) {
	payload := buildPayload(a.model, messages, tools, opts, false)

	var result llm.Result
	operation := func() error {
		if err := a.wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		resp, err := a.doRequest(ctx, payload)
		if err != nil {
			return fmt.Errorf("%w: %v", llm.ErrConnection, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusMultipleChoices {
			apiErr := readAPIError(resp)
			classified := classify(apiErr)
			if isTransient(classified) {
				a.logger.Debug().Err(classified).Msg("anthropic: retrying transient error")
				return classified
			}
			return backoff.Permanent(classified)
		}

		var msgResp messageResponse
		if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
			return backoff.Permanent(fmt.Errorf("anthropic: decode response: %w", err))
		}
		result = convertResponse(msgResp)
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), a.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return llm.Result{}, err
	}
	return result, nil
}

// Stream performs a streaming Messages API call. Valid only without tools.
func (a *Adapter) Stream(ctx context.Context, messages []llm.Message, opts llm.Options, fn llm.StreamFunc) error {
	if fn == nil {
		return errors.New("anthropic: stream callback is required")
	}

	if err := a.wait(ctx); err != nil {
		return err
	}

	payload := buildPayload(a.model, messages, nil, opts, true)
	resp, err := a.doRequest(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: %v", llm.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return classify(readAPIError(resp))
	}

	var full strings.Builder
	var usage llm.Usage
	finalSent := false

	streamErr := consumeSSE(ctx, resp.Body, func(_ string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" {
			return nil
		}

		var envelope streamEventEnvelope
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			return fmt.Errorf("anthropic: decode stream envelope: %w", err)
		}

		switch envelope.Type {
		case "content_block_delta":
			var delta contentBlockDeltaEvent
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				return fmt.Errorf("anthropic: decode delta: %w", err)
			}
			chunk := delta.Delta.Text
			if chunk == "" {
				return nil
			}
			full.WriteString(chunk)
			return fn(llm.StreamChunk{Text: chunk})
		case "message_delta":
			var delta messageDeltaEvent
			if err := json.Unmarshal([]byte(data), &delta); err == nil {
				usage.OutputTokens = delta.Usage.OutputTokens
			}
			return nil
		case "message_stop":
			if finalSent {
				return nil
			}
			finalSent = true
			return fn(llm.StreamChunk{Text: full.String(), Final: true, Usage: usage})
		default:
			return nil
		}
	})
	if streamErr != nil {
		return streamErr
	}
	if !finalSent {
		return fn(llm.StreamChunk{Text: full.String(), Final: true, Usage: usage})
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) doRequest(ctx context.Context, payload messageRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}

	endpoint := a.baseURL + messagesPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	for k, v := range a.headers {
		req.Header.Set(k, v)
	}

	return a.client.Do(req)
}

func readAPIError(resp *http.Response) *apiError {
	retryAfter := 0
	if v := resp.Header.Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			retryAfter = n
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apiError{StatusCode: resp.StatusCode, Message: err.Error(), RetryAfter: retryAfter}
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return &apiError{StatusCode: resp.StatusCode, Message: resp.Status, RetryAfter: retryAfter}
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &apiError{StatusCode: resp.StatusCode, Type: errResp.Error.Type, Message: errResp.Error.Message, RetryAfter: retryAfter}
	}
	return &apiError{StatusCode: resp.StatusCode, Message: string(body), RetryAfter: retryAfter}
}

// classify maps a raw apiError onto the llm package's error taxonomy.
func classify(e *apiError) error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", llm.ErrAuth, e.Error())
	case http.StatusTooManyRequests:
		return &llm.RateLimitError{RetryAfterSeconds: e.RetryAfter, Err: e}
	default:
		if e.StatusCode >= 500 {
			return fmt.Errorf("%w: %s", llm.ErrConnection, e.Error())
		}
		return e
	}
}

func isTransient(err error) bool {
	return errors.Is(err, llm.ErrConnection) || errors.Is(err, llm.ErrRateLimited)
}

func sanitizeBaseURL(base string) string {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(trimmed, "/")
}
