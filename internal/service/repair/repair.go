// Package repair fixes or removes invalid visual blocks and equations in
// generated section markdown. Each invalid span gets a bounded number of
// model attempts; spans the model cannot fix are replaced by a safe
// fallback so the final document always passes validation.
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/validate"
)

// Policy bounds the repair loop.
type Policy struct {
	MaxRetries       int
	AttemptTimeout   time.Duration
	EquationMaxChars int
}

// Service repairs one section's markdown at a time. Safe for concurrent use.
type Service struct {
	ai     domain.AIClient
	model  string
	policy Policy
}

// New constructs a repair Service using the given chat model.
func New(ai domain.AIClient, model string, p Policy) *Service {
	if p.MaxRetries <= 0 {
		p.MaxRetries = 2
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 45 * time.Second
	}
	if p.EquationMaxChars <= 0 {
		p.EquationMaxChars = validate.DefaultEquationMaxChars
	}
	return &Service{ai: ai, model: model, policy: p}
}

// splice is one pending replacement of md[Start:End] with Text.
type splice struct {
	Start int
	End   int
	Text  string
	// deleted marks a removed visual block whose surroundings need
	// blank-line collapsing.
	deleted bool
}

// Repair validates md and rewrites every invalid span. Prose outside the
// invalid spans is preserved byte for byte. The returned markdown passes
// both validators.
func (s *Service) Repair(ctx domain.Context, md string) (string, error) {
	tracer := otel.Tracer("repair.section")
	ctx, span := tracer.Start(ctx, "repair.Repair")
	defer span.End()

	visualIssues := validate.CheckVisuals(md)
	equationIssues := validate.CheckEquations(md, s.policy.EquationMaxChars)
	span.SetAttributes(
		attribute.Int("repair.visual_issues", len(visualIssues)),
		attribute.Int("repair.equation_issues", len(equationIssues)),
	)
	if len(visualIssues) == 0 && len(equationIssues) == 0 {
		return md, nil
	}

	var splices []splice
	for _, issue := range visualIssues {
		splices = append(splices, s.repairVisual(ctx, issue))
	}
	for _, issue := range equationIssues {
		splices = append(splices, s.repairEquation(ctx, issue))
	}

	out := applySplices(md, splices)

	// A model fix that validates in isolation can still clash in context
	// (e.g. a fence introduced next to existing prose). Strip anything that
	// remains invalid with the deterministic fallbacks.
	out = stripRemaining(out, s.policy.EquationMaxChars)
	return out, nil
}

// Pending is an in-flight repair started with Start.
type Pending struct {
	ch chan pendingResult
}

type pendingResult struct {
	md  string
	err error
}

// Start runs Repair in the background so the caller can overlap it with
// other work. Await blocks until the result is ready.
func (s *Service) Start(ctx domain.Context, md string) *Pending {
	p := &Pending{ch: make(chan pendingResult, 1)}
	go func() {
		out, err := s.Repair(ctx, md)
		p.ch <- pendingResult{md: out, err: err}
	}()
	return p
}

// Await returns the repaired markdown. It never blocks past the Repair
// call's own deadlines.
func (p *Pending) Await() (string, error) {
	r := <-p.ch
	return r.md, r.err
}

func (s *Service) repairVisual(ctx domain.Context, issue validate.VisualIssue) splice {
	b := issue.Block
	for attempt := 0; attempt < s.policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		candidate, err := s.askModel(ctx, visualRepairSystem,
			fmt.Sprintf("Block type: %s\nValidation error: %s\n\nBlock body:\n%s", b.Kind, issue.Reason, b.Body))
		if err != nil {
			slog.Warn("visual repair attempt failed",
				slog.String("kind", string(b.Kind)),
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
			continue
		}
		candidate = stripWrappingFence(candidate)
		if validate.ValidateVisualBlock(validate.VisualBlock{Kind: b.Kind, Body: candidate}) == nil {
			return splice{Start: b.Start, End: b.End, Text: rebuildFence(b, candidate)}
		}
	}
	slog.Info("dropping irreparable visual block", slog.String("kind", string(b.Kind)), slog.String("reason", issue.Reason))
	return splice{Start: b.Start, End: b.End, Text: "", deleted: true}
}

func (s *Service) repairEquation(ctx domain.Context, issue validate.EquationIssue) splice {
	sp := issue.Span
	for attempt := 0; attempt < s.policy.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		candidate, err := s.askModel(ctx, equationRepairSystem,
			fmt.Sprintf("Validation error: %s\n\nLaTeX expression:\n%s", issue.Reason, sp.Expression))
		if err != nil {
			slog.Warn("equation repair attempt failed",
				slog.Int("attempt", attempt+1),
				slog.Any("error", err))
			continue
		}
		candidate = stripWrappingFence(candidate)
		candidate = strings.Trim(candidate, "$ \n")
		fixed := validate.EquationSpan{Expression: candidate, Style: sp.Style}
		if validate.ValidateEquation(fixed, s.policy.EquationMaxChars) == nil {
			return splice{Start: sp.Start, End: sp.End, Text: sp.Style.Wrap(candidate)}
		}
	}
	slog.Info("downgrading irreparable equation to inline code", slog.String("reason", issue.Reason))
	return splice{Start: sp.Start, End: sp.End, Text: equationFallback(sp.Expression)}
}

func (s *Service) askModel(ctx domain.Context, system, user string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, s.policy.AttemptTimeout)
	defer cancel()
	resp, err := s.ai.Chat(actx, domain.ChatRequest{
		Model:       s.model,
		Temperature: 0.1,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("op=repair.askModel: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// applySplices replaces spans in descending start order so earlier offsets
// stay valid, then collapses blank lines around deletions.
func applySplices(md string, splices []splice) string {
	sort.Slice(splices, func(i, j int) bool { return splices[i].Start > splices[j].Start })
	out := md
	for _, sp := range splices {
		if sp.Start < 0 || sp.End > len(out) || sp.Start > sp.End {
			continue
		}
		out = out[:sp.Start] + sp.Text + out[sp.End:]
		if sp.deleted {
			out = collapseBlankAt(out, sp.Start)
		}
	}
	return out
}

// collapseBlankAt limits the whitespace run spanning pos to at most two
// consecutive newlines (one blank line).
func collapseBlankAt(s string, pos int) string {
	if pos > len(s) {
		pos = len(s)
	}
	left := pos
	for left > 0 && isBlankByte(s[left-1]) {
		left--
	}
	right := pos
	for right < len(s) && isBlankByte(s[right]) {
		right++
	}
	window := s[left:right]
	if strings.Count(window, "\n") <= 2 {
		return s
	}
	repl := "\n\n"
	if left == 0 {
		repl = ""
	} else if right == len(s) {
		repl = "\n"
	}
	return s[:left] + repl + s[right:]
}

func isBlankByte(b byte) bool {
	return b == '\n' || b == '\r' || b == ' ' || b == '\t'
}

// stripRemaining removes any spans that are still invalid after repair,
// using the deterministic fallbacks only.
func stripRemaining(md string, maxChars int) string {
	var splices []splice
	for _, issue := range validate.CheckVisuals(md) {
		splices = append(splices, splice{Start: issue.Block.Start, End: issue.Block.End, Text: "", deleted: true})
	}
	for _, issue := range validate.CheckEquations(md, maxChars) {
		splices = append(splices, splice{Start: issue.Span.Start, End: issue.Span.End, Text: equationFallback(issue.Span.Expression)})
	}
	if len(splices) == 0 {
		return md
	}
	return applySplices(md, splices)
}

// equationFallback renders the expression as inline code so the content
// survives even when the math cannot be fixed.
func equationFallback(expr string) string {
	expr = strings.TrimSpace(strings.ReplaceAll(expr, "`", ""))
	if expr == "" {
		return ""
	}
	return "`" + expr + "`"
}

// rebuildFence reassembles a fenced block around the repaired body,
// preserving the original trailing newline shape.
func rebuildFence(b validate.VisualBlock, body string) string {
	out := "```" + string(b.Kind) + "\n" + body + "\n```"
	if strings.HasSuffix(b.Raw, "\n") {
		out += "\n"
	}
	return out
}

// stripWrappingFence unwraps a model response that arrives wrapped in its
// own code fence.
func stripWrappingFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return s
	}
	rest := s[nl+1:]
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return s
	}
	return strings.TrimRight(rest[:end], "\n")
}

const visualRepairSystem = `You repair invalid visualization blocks in research documents.
You receive the block type, the validation error, and the block body.
Respond with ONLY the corrected block body. Do not wrap it in a code fence.
Do not add commentary. Preserve the data and intent of the original block.`

const equationRepairSystem = `You repair invalid LaTeX math expressions in research documents.
You receive the validation error and the expression without its delimiters.
Respond with ONLY the corrected expression, without $ delimiters, code fences,
or commentary. Preserve the mathematical meaning of the original.`
