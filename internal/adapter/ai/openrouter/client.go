// Package openrouter implements the AI client port against any
// OpenAI-compatible chat API. OpenRouter is the primary provider; the same
// client serves Groq and OpenAI by pointing base URL and key elsewhere.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/ratelimiter"
)

// Client talks to one OpenAI-compatible provider.
type Client struct {
	cfg      config.Config
	provider string
	baseURL  string
	apiKey   string

	// OpenRouter attribution headers; empty for other providers.
	referer string
	title   string

	embedModel string
	hc         *http.Client
	limiter    ratelimiter.Limiter
}

// NewOpenRouter constructs the primary provider client.
func NewOpenRouter(cfg config.Config, lim ratelimiter.Limiter) *Client {
	c := newClient(cfg, "openrouter", cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, lim)
	c.referer = cfg.OpenRouterReferer
	c.title = cfg.OpenRouterTitle
	return c
}

// NewGroq constructs the secondary provider client used for expert
// alternation.
func NewGroq(cfg config.Config, lim ratelimiter.Limiter) *Client {
	return newClient(cfg, "groq", cfg.GroqBaseURL, cfg.GroqAPIKey, lim)
}

// NewOpenAI constructs the embeddings provider client.
func NewOpenAI(cfg config.Config, lim ratelimiter.Limiter) *Client {
	return newClient(cfg, "openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, lim)
}

func newClient(cfg config.Config, provider, baseURL, apiKey string, lim ratelimiter.Limiter) *Client {
	return &Client{
		cfg:        cfg,
		provider:   provider,
		baseURL:    baseURL,
		apiKey:     apiKey,
		embedModel: cfg.EmbeddingsModel,
		hc: &http.Client{
			Timeout:   120 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: lim,
	}
}

// Wire types for the OpenAI-compatible chat endpoint.

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description,omitempty"`
		Parameters  map[string]any `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireResponseFormat struct {
	Type       string `json:"type"`
	JSONSchema struct {
		Name   string         `json:"name"`
		Strict bool           `json:"strict"`
		Schema map[string]any `json:"schema"`
	} `json:"json_schema"`
}

type chatPayload struct {
	Model          string              `json:"model"`
	Messages       []wireMessage       `json:"messages"`
	Tools          []wireTool          `json:"tools,omitempty"`
	ResponseFormat *wireResponseFormat `json:"response_format,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    float32             `json:"temperature"`
	Stream         bool                `json:"stream,omitempty"`
}

type chatResult struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func buildPayload(req domain.ChatRequest, stream bool) chatPayload {
	p := chatPayload{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var w wireToolCall
			w.ID = tc.ID
			w.Type = "function"
			w.Function.Name = tc.Name
			w.Function.Arguments = tc.Arguments
			wm.ToolCalls = append(wm.ToolCalls, w)
		}
		p.Messages = append(p.Messages, wm)
	}
	for _, t := range req.Tools {
		var w wireTool
		w.Type = "function"
		w.Function.Name = t.Name
		w.Function.Description = t.Description
		w.Function.Parameters = t.Parameters
		p.Tools = append(p.Tools, w)
	}
	if req.ResponseFormat != nil {
		rf := &wireResponseFormat{Type: "json_schema"}
		rf.JSONSchema.Name = req.ResponseFormat.Name
		rf.JSONSchema.Strict = true
		rf.JSONSchema.Schema = req.ResponseFormat.Schema
		p.ResponseFormat = rf
	}
	return p
}

func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()

	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	return expo
}

func (c *Client) setHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		r.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		r.Header.Set("X-Title", c.title)
	}
}

// allow consults the per-provider token bucket. A drained bucket is a
// retryable condition for the surrounding backoff loop.
func (c *Client) allow(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	allowed, retryAfter, err := c.limiter.Allow(ctx, "provider:"+c.provider, 1)
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing request",
			slog.String("provider", c.provider), slog.Any("error", err))
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: provider %s bucket drained, retry in %s",
			domain.ErrRateLimited, c.provider, retryAfter)
	}
	return nil
}

// Chat performs one blocking completion. 429 and 5xx responses retry under
// backoff; other 4xx responses are terminal.
func (c *Client) Chat(ctx domain.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	body, err := json.Marshal(buildPayload(req, false))
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("op=openrouter.Chat: marshal: %w", err)
	}

	var out chatResult
	op := func() error {
		if err := c.allow(ctx); err != nil {
			return err
		}
		start := time.Now()
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		c.setHeaders(r)
		resp, err := c.hc.Do(r)
		observability.AIRequestDuration.WithLabelValues(c.provider, "chat").Observe(time.Since(start).Seconds())
		observability.AIRequestsTotal.WithLabelValues(c.provider, "chat").Inc()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err))
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return err
		}
		if serr := c.classifyStatus(resp.StatusCode, bodyBytes, "chat"); serr != nil {
			return serr
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("chat decode error", slog.String("provider", c.provider), slog.Any("error", err))
			return backoff.Permanent(fmt.Errorf("%w: malformed provider response", domain.ErrSchemaInvalid))
		}
		if len(out.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no choices in provider response", domain.ErrSchemaInvalid))
		}
		return nil
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("op=openrouter.Chat: %w", err)
	}

	choice := out.Choices[0]
	res := domain.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		res.ToolCalls = append(res.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return res, nil
}

// Embed returns one embedding vector per input text.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	payload := map[string]any{"model": c.embedModel, "input": texts}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("op=openrouter.Embed: marshal: %w", err)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	op := func() error {
		if err := c.allow(ctx); err != nil {
			return err
		}
		start := time.Now()
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
		c.setHeaders(r)
		resp, err := c.hc.Do(r)
		observability.AIRequestDuration.WithLabelValues(c.provider, "embed").Observe(time.Since(start).Seconds())
		observability.AIRequestsTotal.WithLabelValues(c.provider, "embed").Inc()
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return err
		}
		if serr := c.classifyStatus(resp.StatusCode, bodyBytes, "embed"); serr != nil {
			return serr
		}
		return json.Unmarshal(bodyBytes, &out)
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("op=openrouter.Embed: %w", err)
	}
	vecs := make([][]float32, 0, len(out.Data))
	for _, d := range out.Data {
		vecs = append(vecs, d.Embedding)
	}
	return vecs, nil
}

// classifyStatus maps a provider HTTP status to retryable or terminal
// errors. The body snippet is logged, never propagated.
func (c *Client) classifyStatus(status int, body []byte, op string) error {
	if status >= 200 && status < 300 {
		return nil
	}
	snippet := string(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	switch {
	case status == 429:
		slog.Warn("provider rate limited",
			slog.String("provider", c.provider), slog.String("operation", op))
		return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
	case status >= 400 && status < 500:
		slog.Warn("provider 4xx",
			slog.String("provider", c.provider),
			slog.String("operation", op),
			slog.Int("status", status),
			slog.String("body", snippet))
		return backoff.Permanent(fmt.Errorf("provider status %d", status))
	default:
		slog.Error("provider non-2xx",
			slog.String("provider", c.provider),
			slog.String("operation", op),
			slog.Int("status", status),
			slog.String("body", snippet))
		return fmt.Errorf("provider status %d", status)
	}
}
