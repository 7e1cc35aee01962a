// Package brave implements the web-search port against the Brave Search API.
package brave

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"log/slog"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// Client implements domain.WebSearchAPI using Brave's web-search endpoint.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a search client with a bounded per-call timeout.
func New(cfg config.Config) *Client {
	return &Client{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   20 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
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

// Search asks for up to count result URLs matching query. Rate limits and
// 5xx responses are retried under backoff; other 4xx responses are terminal.
func (c *Client) Search(ctx domain.Context, query string, count int) ([]domain.SearchResult, error) {
	if c.cfg.SearchAPIKey == "" {
		slog.Error("search API key missing", slog.String("provider", "brave"))
		return nil, fmt.Errorf("%w: SEARCH_API_KEY missing", domain.ErrInvalidArgument)
	}
	if count <= 0 {
		count = 5
	}

	endpoint := c.cfg.SearchBaseURL + "/web/search?q=" + url.QueryEscape(query) + "&count=" + strconv.Itoa(count)

	var out struct {
		Web struct {
			Results []struct {
				URL         string `json:"url"`
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}

	op := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		r.Header.Set("Accept", "application/json")
		r.Header.Set("X-Subscription-Token", c.cfg.SearchAPIKey)
		resp, err := c.hc.Do(r)
		observability.SearchRequestDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			observability.SearchRequestsTotal.WithLabelValues("transport_error").Inc()
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			slog.Error("failed to read search response body", slog.String("provider", "brave"), slog.Any("error", err))
			return err
		}

		if resp.StatusCode == 429 {
			// Retryable: let backoff handle retries
			observability.SearchRequestsTotal.WithLabelValues("rate_limited").Inc()
			slog.Warn("search provider rate limited", slog.String("provider", "brave"), slog.Int("status", resp.StatusCode))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client error: non-retryable
			observability.SearchRequestsTotal.WithLabelValues("client_error").Inc()
			bodySnippet := string(bodyBytes)
			if len(bodySnippet) > 512 {
				bodySnippet = bodySnippet[:512]
			}
			slog.Warn("search provider 4xx", slog.String("provider", "brave"), slog.Int("status", resp.StatusCode), slog.String("endpoint", c.cfg.SearchBaseURL+"/web/search"), slog.String("body", bodySnippet))
			return backoff.Permanent(fmt.Errorf("search status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// 5xx and others: retryable
			observability.SearchRequestsTotal.WithLabelValues("server_error").Inc()
			bodySnippet := string(bodyBytes)
			if len(bodySnippet) > 512 {
				bodySnippet = bodySnippet[:512]
			}
			slog.Error("search provider non-2xx", slog.String("provider", "brave"), slog.Int("status", resp.StatusCode), slog.String("endpoint", c.cfg.SearchBaseURL+"/web/search"), slog.String("body", bodySnippet))
			return fmt.Errorf("search status %d", resp.StatusCode)
		}
		observability.SearchRequestsTotal.WithLabelValues("ok").Inc()
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("search provider decode error", slog.String("provider", "brave"), slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := c.getBackoffConfig()
	bo := backoff.WithContext(expo, ctx)
	if err := backoff.Retry(op, bo); err != nil {
		slog.Error("search API failed after retries", slog.String("provider", "brave"), slog.Any("error", err))
		return nil, fmt.Errorf("op=brave.Search: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(out.Web.Results))
	for _, r := range out.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, domain.SearchResult{URL: r.URL, Title: r.Title, Description: r.Description})
		if len(results) == count {
			break
		}
	}
	slog.Debug("search results",
		slog.String("provider", "brave"),
		slog.String("query", query),
		slog.Int("count", len(results)))
	return results, nil
}
