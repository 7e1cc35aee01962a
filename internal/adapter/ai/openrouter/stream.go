package openrouter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// sseStream reads server-sent completion chunks. It is not safe for
// concurrent Recv calls; Close is idempotent.
type sseStream struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	closeOnce sync.Once
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (s *sseStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return "", io.EOF
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Comment lines and keep-alives are not chunks.
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		return chunk.Choices[0].Delta.Content, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.body.Close() })
	return err
}

// ChatStream starts a streaming completion. The stream is a single attempt:
// once chunks flow there is nothing safe to retry.
func (c *Client) ChatStream(ctx domain.Context, req domain.ChatRequest) (domain.TokenStream, error) {
	if err := c.allow(ctx); err != nil {
		return nil, fmt.Errorf("op=openrouter.ChatStream: %w", err)
	}
	body, err := json.Marshal(buildPayload(req, true))
	if err != nil {
		return nil, fmt.Errorf("op=openrouter.ChatStream: marshal: %w", err)
	}
	start := time.Now()
	r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	c.setHeaders(r)
	r.Header.Set("Accept", "text/event-stream")
	resp, err := c.hc.Do(r)
	observability.AIRequestDuration.WithLabelValues(c.provider, "chat_stream").Observe(time.Since(start).Seconds())
	observability.AIRequestsTotal.WithLabelValues(c.provider, "chat_stream").Inc()
	if err != nil {
		return nil, fmt.Errorf("op=openrouter.ChatStream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if serr := c.classifyStatus(resp.StatusCode, bodyBytes, "chat_stream"); serr != nil {
			return nil, fmt.Errorf("op=openrouter.ChatStream: %w", serr)
		}
	}
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	return &sseStream{body: resp.Body, scanner: sc}, nil
}
