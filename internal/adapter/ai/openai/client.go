// Package openai implements domain.Analyzer against an OpenAI-compatible
// chat completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Buringskul/cv-feedback-bot/internal/adapter/ai"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/ai/tokencount"
	"github.com/Buringskul/cv-feedback-bot/internal/adapter/observability"
	"github.com/Buringskul/cv-feedback-bot/internal/config"
	"github.com/Buringskul/cv-feedback-bot/internal/domain"
	obsctx "github.com/Buringskul/cv-feedback-bot/internal/observability"
)

const provider = "openai"

// Client calls POST {base}/chat/completions with temperature 0 and returns
// the JSON object from the first choice.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	prompt  ai.Prompt
	counter *tokencount.Counter
}

// New constructs a Client. The HTTP client has no overall timeout; calls are
// bounded by the caller's context.
func New(cfg config.Config, prompt ai.Prompt) *Client {
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		prompt:  prompt,
		counter: tokencount.DefaultCounter,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// statusError carries a non-2xx provider status through the retry loop.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string { return fmt.Sprintf("chat status %d: %s", e.code, e.body) }

func (c *Client) backoff() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime, expo.InitialInterval, expo.MaxInterval, expo.Multiplier = c.cfg.GetAIBackoffConfig()
	return expo
}

// AnalyzeJSON asks the model to assess text for role and returns the cleaned
// JSON object. Rate limits and 5xx responses are retried with exponential
// backoff; other 4xx responses fail immediately.
func (c *Client) AnalyzeJSON(ctx domain.Context, text, role string) (string, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if c.cfg.OpenAIAPIKey == "" {
		lg.Error("OpenAI API key missing", slog.String("provider", provider))
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInternal)
	}

	if truncated, cut := c.counter.Truncate(text, c.cfg.OpenAIModel, c.cfg.LLMMaxInputTokens); cut {
		lg.Warn("résumé text truncated to token budget",
			slog.Int("max_input_tokens", c.cfg.LLMMaxInputTokens),
			slog.Int("original_chars", len(text)),
			slog.Int("kept_chars", len(truncated)))
		text = truncated
	}
	system, user := c.prompt.Render(role, text)
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.OpenAIModel,
		Temperature: 0,
		MaxTokens:   c.cfg.LLMMaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode chat request: %v", domain.ErrInternal, err)
	}

	endpoint := strings.TrimRight(c.cfg.OpenAIBaseURL, "/") + "/chat/completions"
	var out chatResponse
	op := func() error {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(req)
		observability.AIRequestsTotal.WithLabelValues(provider, "chat").Inc()
		observability.AIRequestDuration.WithLabelValues(provider, "chat").Observe(time.Since(start).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			lg.Warn("ai provider request failed", slog.String("provider", provider), slog.Any("error", err))
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			serr := &statusError{code: resp.StatusCode, body: snippet(b, 512)}
			lg.Warn("ai provider non-2xx",
				slog.String("provider", provider),
				slog.Int("status", resp.StatusCode),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
				slog.String("body", serr.body))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode chat response: %w", err))
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.backoff(), ctx)); err != nil {
		return "", c.classify(ctx, err)
	}

	if len(out.Choices) == 0 {
		observability.AIRequestErrorsTotal.WithLabelValues(provider, "empty").Inc()
		return "", fmt.Errorf("%w: no choices in chat response", domain.ErrUpstream)
	}
	content := out.Choices[0].Message.Content
	cleaned, err := ai.CleanJSON(content)
	if err != nil {
		observability.AIRequestErrorsTotal.WithLabelValues(provider, "non_json").Inc()
		lg.Error("ai provider returned non-JSON content",
			slog.String("provider", provider),
			slog.String("finish_reason", out.Choices[0].FinishReason),
			slog.String("content", snippet([]byte(content), 256)))
		return "", fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	return cleaned, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	var serr *statusError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		observability.AIRequestErrorsTotal.WithLabelValues(provider, "timeout").Inc()
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	case errors.As(err, &serr) && serr.code == http.StatusTooManyRequests:
		observability.AIRequestErrorsTotal.WithLabelValues(provider, "rate_limited").Inc()
		return fmt.Errorf("%w: %v", domain.ErrUpstreamRateLimit, err)
	case errors.As(err, &serr):
		observability.AIRequestErrorsTotal.WithLabelValues(provider, "status").Inc()
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	default:
		observability.AIRequestErrorsTotal.WithLabelValues(provider, "transport").Inc()
		return fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return strings.ToValidUTF8(string(b), "")
}
