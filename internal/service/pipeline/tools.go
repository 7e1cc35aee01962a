package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/pkg/textx"
)

const (
	toolVectorSearch = "vector_search"
	toolURLSearch    = "url_search"
	toolWebSearch    = "web_search"

	webSearchURLCount  = 5
	vectorSearchTopK   = 5
	docRenderMaxChars  = 4000
	noVectorDocsText   = "No documents found in this session's research store yet. Use web_search to gather sources first."
	noScrapeResultText = "The page could not be retrieved."
	partialNoteText    = "[web_search timed out, returning partial results]"
)

// Toolset exposes the three research tools to a reasoning agent. One
// Toolset is scoped to a single job's session.
type Toolset struct {
	UserID    string
	SessionID string
	Depth     domain.Depth

	Vector  domain.VectorStore
	Scraper domain.Scraper
	PDF     domain.PDFService
	Search  domain.WebSearchAPI
	PdfJobs domain.PdfJobRepository

	AI           domain.AIClient
	SummaryModel string

	WebSearchTimeout time.Duration
	PerURLTimeout    time.Duration
}

// Specs returns the provider-neutral tool declarations.
func (t *Toolset) Specs() []domain.ToolSpec {
	return []domain.ToolSpec{
		{
			Name:        toolVectorSearch,
			Description: "Search documents already collected for this research session. Use before fetching new sources.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string", "description": "Natural-language search query."}},
				"required":   []string{"query"},
			},
		},
		{
			Name:        toolURLSearch,
			Description: "Fetch and read a single URL (web page or PDF). The document is stored for later vector_search calls.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"url": map[string]any{"type": "string", "description": "Absolute http(s) URL to fetch."}},
				"required":   []string{"url"},
			},
		},
		{
			Name:        toolWebSearch,
			Description: "Search the web, fetch the top results concurrently, and return their contents with per-document summaries.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string", "description": "Web search query."}},
				"required":   []string{"query"},
			},
		},
	}
}

// Dispatch runs one model-requested tool call and returns the rendered
// plain-text result.
func (t *Toolset) Dispatch(ctx domain.Context, call domain.ToolCall) (string, error) {
	var args struct {
		Query string `json:"query"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return "", fmt.Errorf("op=tools.Dispatch: %w: bad arguments for %s", domain.ErrInvalidArgument, call.Name)
	}
	switch call.Name {
	case toolVectorSearch:
		return t.VectorSearch(ctx, args.Query)
	case toolURLSearch:
		return t.URLSearch(ctx, args.URL)
	case toolWebSearch:
		return t.WebSearch(ctx, args.Query)
	}
	return "", fmt.Errorf("op=tools.Dispatch: %w: unknown tool %s", domain.ErrInvalidArgument, call.Name)
}

// VectorSearch returns up to 5 session-scoped documents for the query.
func (t *Toolset) VectorSearch(ctx domain.Context, query string) (string, error) {
	tracer := otel.Tracer("pipeline.tools")
	ctx, span := tracer.Start(ctx, "tools.vector_search")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", t.SessionID))

	docs, err := t.Vector.Search(ctx, t.SessionID, query, vectorSearchTopK)
	if err != nil {
		return "", fmt.Errorf("op=tools.VectorSearch: %w", err)
	}
	if len(docs) == 0 {
		return noVectorDocsText, nil
	}
	return renderDocuments(docs, nil), nil
}

// URLSearch scrapes one URL, persists the document, and returns its
// rendering. A scrape timeout on a PDF URL queues a background extraction.
func (t *Toolset) URLSearch(ctx domain.Context, url string) (string, error) {
	tracer := otel.Tracer("pipeline.tools")
	ctx, span := tracer.Start(ctx, "tools.url_search")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	sctx, cancel := context.WithTimeout(ctx, t.PerURLTimeout)
	doc, err := t.Scraper.Scrape(sctx, url, "")
	cancel()
	if err != nil {
		return "", fmt.Errorf("op=tools.URLSearch: %w", err)
	}
	if doc == nil {
		if t.PDF.IsPDFURL(ctx, url) {
			if t.queuePdfFallback(ctx, url) == "" {
				return noScrapeResultText, nil
			}
			return "The document is a PDF that could not be read before the deadline. A background extraction was queued; check vector_search again shortly.", nil
		}
		return noScrapeResultText, nil
	}
	if err := t.Vector.UpsertDocuments(ctx, t.SessionID, []domain.Document{*doc}); err != nil {
		slog.Warn("vector persist failed", slog.String("url", url), slog.Any("error", err))
	}
	return renderDocuments([]domain.Document{*doc}, nil), nil
}

// queuePdfFallback enqueues a background extraction for a PDF URL whose
// scrape ran out of time, returning the job id or "" when the enqueue
// could not happen.
func (t *Toolset) queuePdfFallback(ctx domain.Context, url string) string {
	id, err := t.PdfJobs.Create(ctx, domain.PdfJob{
		SessionID: t.SessionID,
		SourceURL: url,
		Status:    domain.JobQueued,
		Reason:    domain.PdfReasonScrapeTimeout,
		NextRunAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("pdf fallback enqueue failed", slog.String("url", url), slog.Any("error", err))
		return ""
	}
	slog.Info("queued pdf fallback for slow url", slog.String("url", url), slog.String("pdf_job_id", id))
	return id
}

type scrapeResult struct {
	doc *domain.Document
}

// WebSearch asks the search API for 5 URLs, scrapes them concurrently, and
// returns the collected documents. It stops early once the depth's minimum
// document count is reached and never outlives its wall-clock budget.
func (t *Toolset) WebSearch(ctx domain.Context, query string) (string, error) {
	tracer := otel.Tracer("pipeline.tools")
	ctx, span := tracer.Start(ctx, "tools.web_search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	results, err := t.Search.Search(ctx, query, webSearchURLCount)
	if err != nil {
		return "", fmt.Errorf("op=tools.WebSearch: %w", err)
	}
	if len(results) == 0 {
		return "The web search returned no results.", nil
	}

	wctx, cancel := context.WithTimeout(ctx, t.WebSearchTimeout)
	defer cancel()

	resCh := make(chan scrapeResult, len(results))
	for _, r := range results {
		go func(r domain.SearchResult) {
			sctx, scancel := context.WithTimeout(wctx, t.PerURLTimeout)
			defer scancel()
			doc, serr := t.Scraper.Scrape(sctx, r.URL, r.Title)
			if serr != nil {
				slog.Debug("scrape failed", slog.String("url", r.URL), slog.Any("error", serr))
				doc = nil
			}
			// A miss on a live call means the per-URL budget ran out; for a
			// PDF that still gets the background extraction, same as
			// url_search. Misses after the call-level cancel are dropped.
			if doc == nil && wctx.Err() == nil && t.PDF.IsPDFURL(ctx, r.URL) {
				t.queuePdfFallback(ctx, r.URL)
			}
			resCh <- scrapeResult{doc: doc}
		}(r)
	}

	minDocs := t.Depth.MinDocumentsBeforeStop()
	var docs []domain.Document
	seen := make(map[string]bool)
	received := 0
	timedOut := false

collect:
	for received < len(results) {
		select {
		case res := <-resCh:
			received++
			if res.doc != nil && !seen[res.doc.Metadata.Source] {
				seen[res.doc.Metadata.Source] = true
				docs = append(docs, *res.doc)
				if len(docs) >= minDocs {
					break collect
				}
			}
		case <-wctx.Done():
			timedOut = true
			break collect
		}
	}

	// Cancel whatever is still pending and await settlement so no scrape
	// outlives this call. Late completions are dropped: the buffer is
	// whatever had arrived when the loop broke.
	cancel()
	for received < len(results) {
		<-resCh
		received++
	}
	span.SetAttributes(attribute.Int("docs.collected", len(docs)), attribute.Bool("timed_out", timedOut))

	if len(docs) == 0 {
		if timedOut {
			return "No pages could be retrieved before the deadline. " + partialNoteText, nil
		}
		return "None of the search results could be retrieved.", nil
	}
	if err := t.Vector.UpsertDocuments(ctx, t.SessionID, docs); err != nil {
		slog.Warn("vector persist failed", slog.Int("docs", len(docs)), slog.Any("error", err))
	}

	if timedOut {
		return renderDocuments(docs, nil) + "\n\n" + partialNoteText, nil
	}
	summaries := t.summarizeDocuments(ctx, docs)
	return renderDocuments(docs, summaries), nil
}

// summarizeDocuments produces a compact summary per document. A failed
// summary falls back to the truncated body.
func (t *Toolset) summarizeDocuments(ctx domain.Context, docs []domain.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		resp, err := t.AI.Chat(ctx, domain.ChatRequest{
			Model:       t.SummaryModel,
			Temperature: 0.2,
			Messages: []domain.ChatMessage{
				{Role: "system", Content: documentSummarySystem},
				{Role: "user", Content: textx.Truncate(d.PageContent, docRenderMaxChars*2)},
			},
		})
		if err != nil || strings.TrimSpace(resp.Content) == "" {
			slog.Debug("document summary failed", slog.String("source", d.Metadata.Source), slog.Any("error", err))
			continue
		}
		out[i] = strings.TrimSpace(resp.Content)
	}
	return out
}

// renderDocuments renders documents as section-separated plain text. When a
// non-empty summary exists for a document it replaces the raw body.
func renderDocuments(docs []domain.Document, summaries []string) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "Source: %s\nTitle: %s\n\n", d.Metadata.Source, d.Metadata.Title)
		body := textx.Truncate(d.PageContent, docRenderMaxChars)
		if summaries != nil && i < len(summaries) && summaries[i] != "" {
			body = summaries[i]
		}
		b.WriteString(body)
	}
	return b.String()
}
