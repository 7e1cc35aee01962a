package pipeline

import (
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// Summarizer maintains rolling summaries of sections written so far. A
// failed summarisation keeps the previous summary; it never fails a stage.
type Summarizer struct {
	AI          domain.AIClient
	Model       string
	TokenBudget int
	Counter     *tokencount.Counter
}

// Update returns a new rolling summary covering sections; prev is returned
// unchanged when the summariser fails.
func (s *Summarizer) Update(ctx domain.Context, prev string, sections []string) string {
	joined := strings.Join(sections, "\n\n")
	if strings.TrimSpace(joined) == "" {
		return prev
	}
	joined = s.capToBudget(joined)
	resp, err := s.AI.Chat(ctx, domain.ChatRequest{
		Model:       s.Model,
		Temperature: 0.2,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: rollingSummarySystem},
			{Role: "user", Content: joined},
		},
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		slog.Debug("rolling summary unchanged", slog.Any("error", err))
		return prev
	}
	return strings.TrimSpace(resp.Content)
}

// capToBudget trims text to the token budget, cutting from the front so the
// most recent sections survive.
func (s *Summarizer) capToBudget(text string) string {
	if s.TokenBudget <= 0 || s.Counter == nil {
		return text
	}
	n, err := s.Counter.CountTokens(text, s.Model)
	if err != nil || n <= s.TokenBudget {
		return text
	}
	// Tokens are ~4 bytes on average for English prose; trim with slack and
	// recheck once.
	keep := len(text) * s.TokenBudget / n
	if keep < len(text) {
		text = text[len(text)-keep:]
		if i := strings.IndexByte(text, '\n'); i >= 0 && i < len(text)-1 {
			text = text[i+1:]
		}
	}
	return text
}
