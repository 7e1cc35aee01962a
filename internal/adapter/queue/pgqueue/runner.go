package pgqueue

import (
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/pipeline"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/repair"
)

// PipelineRunner is the production Executor: it assembles a per-job
// pipeline from the shared collaborators and the job's request knobs.
type PipelineRunner struct {
	Cfg       config.Config
	Primary   domain.AIClient
	Secondary domain.AIClient

	Vector  domain.VectorStore
	Scraper domain.Scraper
	PDF     domain.PDFService
	Search  domain.WebSearchAPI
	PdfJobs domain.PdfJobRepository

	Repair  *repair.Service
	Counter *tokencount.Counter
}

// Execute runs the resumable pipeline for one claimed job.
func (r *PipelineRunner) Execute(ctx domain.Context, job domain.ResearchJob, checkpoint pipeline.CheckpointFunc, progress pipeline.ProgressFunc) (string, error) {
	tools := &pipeline.Toolset{
		UserID:    job.UserID,
		SessionID: job.SessionID,
		Depth:     job.Request.Depth,

		Vector:  r.Vector,
		Scraper: r.Scraper,
		PDF:     r.PDF,
		Search:  r.Search,
		PdfJobs: r.PdfJobs,

		AI:           r.Primary,
		SummaryModel: r.Cfg.SummaryModel,

		WebSearchTimeout: r.Cfg.WebSearchTimeout,
		PerURLTimeout:    r.Cfg.ScrapeTimeout,
	}
	p := &pipeline.Pipeline{
		Primary:        r.Primary,
		Secondary:      r.Secondary,
		Model:          r.Cfg.ChatModel(job.Request.ModelTier),
		SecondaryModel: r.Cfg.SecondaryChatModel,

		Tools: tools,
		Summarize: &pipeline.Summarizer{
			AI:          r.Primary,
			Model:       r.Cfg.SummaryModel,
			TokenBudget: r.Cfg.SummaryTokenBudget,
			Counter:     r.Counter,
		},
		Repair: r.Repair,

		Breadth: job.Request.Breadth,
		Length:  job.Request.DocumentLength,

		MaxToolRounds:  r.Cfg.AgentMaxToolRounds,
		SectionTimeout: r.Cfg.SectionAttemptTimeout,
	}
	return p.RunResumable(ctx, job.Request.ResearchIdea, job.GraphState, job.ResumeFromNode, checkpoint, progress)
}
