package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// defaultMaxToolRounds bounds the tool-calling loop per agent run.
const defaultMaxToolRounds = 8

// Agent drives one tool-calling conversation against a single model. The
// stages never look inside the loop; they hand over a system prompt and
// user content and receive the final text or structured value.
type Agent struct {
	AI        domain.AIClient
	Model     string
	Tools     *Toolset
	MaxRounds int
}

// Run executes the tool loop until the model answers without tool calls.
// When the round budget runs out, a final tool-free call forces an answer.
func (a *Agent) Run(ctx domain.Context, system string, user ...string) (string, error) {
	msgs := a.seed(system, user)
	rounds := a.MaxRounds
	if rounds <= 0 {
		rounds = defaultMaxToolRounds
	}
	for round := 0; round < rounds; round++ {
		resp, err := a.AI.Chat(ctx, domain.ChatRequest{
			Model:    a.Model,
			Messages: msgs,
			Tools:    a.Tools.Specs(),
		})
		if err != nil {
			return "", fmt.Errorf("op=pipeline.Agent.Run: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		msgs = append(msgs, domain.ChatMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result, terr := a.Tools.Dispatch(ctx, call)
			if terr != nil {
				if ctx.Err() != nil {
					return "", fmt.Errorf("op=pipeline.Agent.Run: %w", terr)
				}
				slog.Warn("tool call failed", slog.String("tool", call.Name), slog.Any("error", terr))
				result = "The tool call failed. Continue with the information you already have."
			}
			msgs = append(msgs, domain.ChatMessage{Role: "tool", Content: result, ToolCallID: call.ID, Name: call.Name})
		}
	}
	msgs = append(msgs, domain.ChatMessage{Role: "user", Content: "Stop researching and answer now with what you have."})
	resp, err := a.AI.Chat(ctx, domain.ChatRequest{Model: a.Model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("op=pipeline.Agent.Run: %w", err)
	}
	return resp.Content, nil
}

// RunStructured executes the tool loop, then requests the final answer as
// JSON matching schema, decoded into T.
func RunStructured[T any](ctx domain.Context, a *Agent, schema domain.ResponseSchema, system string, user ...string) (T, error) {
	var zero T
	text, err := a.Run(ctx, system, user...)
	if err != nil {
		return zero, err
	}
	prompt := "Produce the final answer as JSON matching the required schema.\n\nDraft answer:\n" + text
	return GenerateStructured[T](ctx, a.AI, a.Model, schema, domain.ChatMessage{Role: "system", Content: system}, domain.ChatMessage{Role: "user", Content: prompt})
}

// GenerateStructured asks the model for schema-conforming JSON and decodes
// it into T. A parse failure is retried once, then surfaced as
// ErrSchemaInvalid so callers can distinguish content-shape failures from
// transport errors.
func GenerateStructured[T any](ctx domain.Context, ai domain.AIClient, model string, schema domain.ResponseSchema, msgs ...domain.ChatMessage) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := ai.Chat(ctx, domain.ChatRequest{
			Model:          model,
			Messages:       msgs,
			ResponseFormat: &schema,
		})
		if err != nil {
			return zero, fmt.Errorf("op=pipeline.GenerateStructured: %w", err)
		}
		var out T
		if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &out); err != nil {
			lastErr = err
			slog.Warn("structured output parse failed",
				slog.String("schema", schema.Name),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
			continue
		}
		return out, nil
	}
	return zero, fmt.Errorf("op=pipeline.GenerateStructured: schema=%s: %w: %v", schema.Name, domain.ErrSchemaInvalid, lastErr)
}

func (a *Agent) seed(system string, user []string) []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(user)+1)
	msgs = append(msgs, domain.ChatMessage{Role: "system", Content: system})
	for _, u := range user {
		msgs = append(msgs, domain.ChatMessage{Role: "user", Content: u})
	}
	return msgs
}

// extractJSON tolerates a model reply that wraps its JSON in a code fence
// or leading prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	want := byte('}')
	if s[start] == '[' {
		want = ']'
	}
	end := strings.LastIndexByte(s, want)
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
