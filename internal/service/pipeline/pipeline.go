package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/repair"
)

// CheckpointFunc persists the serialised state after a finished stage. next
// is nil when no stage remains.
type CheckpointFunc func(ctx domain.Context, finished domain.StageTag, state map[string]any, next *domain.StageTag) error

// ProgressFunc reports the stage about to run with its user-visible message.
type ProgressFunc func(ctx domain.Context, stage domain.StageTag, message string) error

// Pipeline executes the research workflow for one job. Instances are
// per-job: Tools is scoped to the job's session and Breadth/Depth/Length
// come from the job's request.
type Pipeline struct {
	Primary        domain.AIClient
	Secondary      domain.AIClient
	Model          string
	SecondaryModel string

	Tools     *Toolset
	Summarize *Summarizer
	Repair    *repair.Service

	Breadth domain.Breadth
	Length  domain.DocumentLength

	MaxToolRounds  int
	SectionTimeout time.Duration
	// sectionRetryDelays is the finite backoff tuple between section
	// attempts; its length bounds the retries.
	SectionRetryDelays []time.Duration
}

var defaultSectionRetryDelays = []time.Duration{2 * time.Second, 5 * time.Second}

// RunResumable resumes the workflow at the first missing stage (or the
// requested stage when its prerequisites are satisfied) and runs to the
// final document. It returns the rendered markdown.
func (p *Pipeline) RunResumable(ctx domain.Context, idea string, graphState map[string]any, requested *domain.StageTag, checkpoint CheckpointFunc, progress ProgressFunc) (string, error) {
	tracer := otel.Tracer("pipeline.run")
	ctx, span := tracer.Start(ctx, "pipeline.RunResumable")
	defer span.End()

	if strings.TrimSpace(idea) == "" {
		return emptyIdeaMessage, nil
	}

	st := Deserialize(graphState)
	if st.ResearchIdea == "" {
		st.ResearchIdea = idea
	}
	var req domain.StageTag
	if requested != nil {
		req = *requested
	}
	stage, ok := ResolveResumeStage(req, st)
	if !ok {
		return st.FinalDocument.Markdown(), nil
	}
	span.SetAttributes(attribute.String("pipeline.resume_stage", string(stage)))

	for {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("op=pipeline.RunResumable: %w", err)
		}
		if progress != nil {
			if err := progress(ctx, stage, domain.ProgressMessage(stage)); err != nil {
				slog.Warn("progress update failed", slog.String("stage", string(stage)), slog.Any("error", err))
			}
		}
		slog.Info("pipeline stage starting", slog.String("stage", string(stage)))
		started := time.Now()

		var err error
		switch stage {
		case domain.StageOutline:
			err = p.runOutline(ctx, st)
		case domain.StagePerspectives:
			err = p.runPerspectives(ctx, st)
		case domain.StageContent:
			err = p.runContent(ctx, st)
		case domain.StageFusion:
			err = p.runFusion(ctx, st)
		default:
			err = fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidArgument, stage)
		}
		if err != nil {
			return "", fmt.Errorf("op=pipeline.RunResumable: stage=%s: %w", stage, err)
		}
		slog.Info("pipeline stage finished",
			slog.String("stage", string(stage)),
			slog.Duration("took", time.Since(started)))

		next, more := ResolveResumeStage("", st)
		var nextPtr *domain.StageTag
		if more {
			nextPtr = &next
		}
		if checkpoint != nil {
			if cerr := checkpoint(ctx, stage, Serialize(st), nextPtr); cerr != nil {
				return "", fmt.Errorf("op=pipeline.RunResumable: checkpoint after %s: %w", stage, cerr)
			}
		}
		if !more {
			break
		}
		stage = next
	}
	return st.FinalDocument.Markdown(), nil
}

func (p *Pipeline) runOutline(ctx domain.Context, st *State) error {
	agent := &Agent{AI: p.Primary, Model: p.Model, Tools: p.Tools, MaxRounds: p.MaxToolRounds}
	outline, err := RunStructured[domain.Outline](ctx, agent, outlineSchema(), outlineSystem, "Research idea: "+st.ResearchIdea)
	if err != nil {
		return err
	}
	if len(outline.Sections) == 0 {
		return fmt.Errorf("%w: outline has no sections", domain.ErrSchemaInvalid)
	}
	st.Outline = &outline
	return nil
}

func (p *Pipeline) runPerspectives(ctx domain.Context, st *State) error {
	count := p.Breadth.ExpertCount()
	prompt := fmt.Sprintf("Research idea: %s\n\nDocument outline:\n%s", st.ResearchIdea, outlineText(st.Outline))
	persp, err := GenerateStructured[domain.Perspectives](ctx, p.Primary, p.Model, perspectivesSchema(),
		domain.ChatMessage{Role: "system", Content: perspectivesSystem(count)},
		domain.ChatMessage{Role: "user", Content: prompt},
	)
	if err != nil {
		return err
	}
	if len(persp.Experts) == 0 {
		return fmt.Errorf("%w: no experts returned", domain.ErrSchemaInvalid)
	}
	if len(persp.Experts) > count {
		persp.Experts = persp.Experts[:count]
	}
	st.Perspectives = &persp
	return nil
}

// runContent runs one agent per expert in parallel; each agent walks the
// outline sections serially with a rolling summary. The result matrix is
// rectangular: rows are sections, columns are experts.
func (p *Pipeline) runContent(ctx domain.Context, st *State) error {
	sections := st.Outline.Sections
	experts := st.Perspectives.Experts
	matrix := make([][]string, len(sections))
	for i := range matrix {
		matrix[i] = make([]string, len(experts))
	}

	g, gctx := errgroup.WithContext(ctx)
	for ei := range experts {
		g.Go(func() error {
			expert := experts[ei]
			client, model := p.providerFor(ei)
			agent := &Agent{AI: client, Model: model, Tools: p.Tools, MaxRounds: p.MaxToolRounds}
			system := expertSystem(expert)

			summary := ""
			written := make([]string, 0, len(sections))
			for si, sec := range sections {
				if err := gctx.Err(); err != nil {
					return err
				}
				text := p.generateSection(gctx, agent, system, sec, summary)
				matrix[si][ei] = text
				written = append(written, text)
				summary = p.Summarize.Update(gctx, summary, written)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	st.PerspectiveContent = normalizeMatrix(matrix)
	return nil
}

// generateSection produces one section draft with bounded attempts. Every
// failure path degrades to the fixed fallback text; it never errors.
func (p *Pipeline) generateSection(ctx domain.Context, agent *Agent, system string, sec domain.OutlineSection, summary string) string {
	delays := p.SectionRetryDelays
	if delays == nil {
		delays = defaultSectionRetryDelays
	}
	timeout := p.SectionTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	for attempt := 0; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, timeout)
		text, err := agent.Run(actx, system, sectionPrompt(sec, summary))
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		slog.Warn("section attempt failed",
			slog.String("section", sec.SectionTitle),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
		if attempt >= len(delays) || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(delays[attempt]):
		case <-ctx.Done():
			return domain.FallbackSectionText(sec.SectionTitle)
		}
	}
	return domain.FallbackSectionText(sec.SectionTitle)
}

// runFusion merges the expert drafts section by section. Repair of section
// k overlaps the rolling-summary update and is awaited before section k+1's
// draft begins. Breadth=low passes the single expert column through.
func (p *Pipeline) runFusion(ctx domain.Context, st *State) error {
	sections := st.Outline.Sections
	final := make([]domain.ContentSection, 0, len(sections))

	if p.Breadth.ExpertCount() <= 1 {
		for si, sec := range sections {
			text := ""
			if si < len(st.PerspectiveContent) && len(st.PerspectiveContent[si]) > 0 {
				text = st.PerspectiveContent[si][0]
			}
			if strings.TrimSpace(text) == "" {
				text = domain.FallbackSectionText(sec.SectionTitle)
			}
			repaired, err := p.Repair.Repair(ctx, text)
			if err == nil {
				text = repaired
			}
			final = append(final, domain.ContentSection{SectionTitle: sec.SectionTitle, Content: text, Citations: nil})
		}
		st.FinalDocument = &domain.CompleteDocument{Title: st.Outline.DocumentTitle, Sections: final}
		return nil
	}

	system := fusionSystem(st.Outline, p.Length)
	summary := ""
	finalTexts := make([]string, 0, len(sections))
	for si, sec := range sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		var drafts []string
		if si < len(st.PerspectiveContent) {
			drafts = st.PerspectiveContent[si]
		}
		cs := p.fuseSection(ctx, system, sec, drafts, st.Perspectives.Experts, summary)

		pending := p.Repair.Start(ctx, cs.Content)
		finalTexts = append(finalTexts, cs.Content)
		summary = p.Summarize.Update(ctx, summary, finalTexts)
		repaired, rerr := pending.Await()
		if rerr == nil {
			cs.Content = repaired
		}

		cs.Citations = dedupeCitations(cs.Citations)
		final = append(final, cs)
	}
	st.FinalDocument = &domain.CompleteDocument{Title: st.Outline.DocumentTitle, Sections: final}
	return nil
}

// fuseSection asks the reasoning model for the merged section. On failure it
// degrades to the fallback text so the document always completes.
func (p *Pipeline) fuseSection(ctx domain.Context, system string, sec domain.OutlineSection, drafts []string, experts []domain.Expert, summary string) domain.ContentSection {
	timeout := p.SectionTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cs, err := GenerateStructured[domain.ContentSection](actx, p.Primary, p.Model, contentSectionSchema(),
		domain.ChatMessage{Role: "system", Content: system},
		domain.ChatMessage{Role: "user", Content: fusionPrompt(sec, experts, drafts, summary)},
	)
	if err != nil || strings.TrimSpace(cs.Content) == "" {
		slog.Warn("fusion failed for section",
			slog.String("section", sec.SectionTitle),
			slog.Any("error", err))
		return domain.ContentSection{SectionTitle: sec.SectionTitle, Content: domain.FallbackSectionText(sec.SectionTitle)}
	}
	cs.SectionTitle = sec.SectionTitle
	return cs
}

// providerFor alternates the backing provider by expert index so experts do
// not share a single provider's failure modes.
func (p *Pipeline) providerFor(expertIndex int) (domain.AIClient, string) {
	if expertIndex%2 == 1 && p.Secondary != nil {
		return p.Secondary, p.SecondaryModel
	}
	return p.Primary, p.Model
}

func dedupeCitations(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func outlineText(o *domain.Outline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\n", o.DocumentTitle, o.DocumentDescription)
	for i, s := range o.Sections {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, s.SectionTitle, s.Description)
	}
	return b.String()
}
