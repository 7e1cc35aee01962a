package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/observability"
)

const (
	defaultPrimaryTimeout  = 45 * time.Second
	defaultMinPartialChars = 500
	defaultDownloadTimeout = 120 * time.Second
	defaultProbeTimeout    = 5 * time.Second
)

const extractSystemPrompt = `You extract the full text of PDF documents. Retrieve the document at the URL the user provides and return its complete plain text in reading order. Output only the document text, no commentary.`

// Service is the PDF detection and extraction facade. The zero timeouts
// fall back to the package defaults.
type Service struct {
	AI    domain.AIClient
	Model string
	Jobs  domain.PdfJobRepository
	HTTP  *http.Client

	PrimaryTimeout  time.Duration
	MinPartialChars int
	DownloadTimeout time.Duration
	ProbeTimeout    time.Duration
}

// New wires the streaming extractor. jobs may be nil in tools that handle
// fallback enqueueing themselves.
func New(ai domain.AIClient, model string, jobs domain.PdfJobRepository) *Service {
	return &Service{
		AI:    ai,
		Model: model,
		Jobs:  jobs,
		HTTP: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (s *Service) httpClient() *http.Client {
	if s.HTTP != nil {
		return s.HTTP
	}
	return http.DefaultClient
}

func (s *Service) probeContext(ctx domain.Context) (domain.Context, context.CancelFunc) {
	d := s.ProbeTimeout
	if d <= 0 {
		d = defaultProbeTimeout
	}
	return context.WithTimeout(ctx, d)
}

// Extract streams the document text from the model endpoint under a
// monotonic deadline. Depending on how much text arrived in time it returns
// a complete document, a partial one tagged with a bracketed notice, or
// nothing with a background job enqueued to finish the work.
func (s *Service) Extract(ctx domain.Context, rawURL, title string) (*domain.Document, domain.PdfOutcome, error) {
	tracer := otel.Tracer("pdf.extract")
	ctx, span := tracer.Start(ctx, "pdf.Extract")
	defer span.End()
	span.SetAttributes(attribute.String("pdf.url", rawURL))

	primary := s.PrimaryTimeout
	if primary <= 0 {
		primary = defaultPrimaryTimeout
	}
	minPartial := s.MinPartialChars
	if minPartial <= 0 {
		minPartial = defaultMinPartialChars
	}

	deadline := time.Now().Add(primary)
	sctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	text, streamErr := s.streamText(sctx, rawURL)
	timedOut := errors.Is(streamErr, context.DeadlineExceeded) && ctx.Err() == nil
	span.SetAttributes(attribute.Int("pdf.chars", len(text)))

	switch {
	case streamErr == nil && text != "":
		doc := s.buildDocument(rawURL, title, text, "stream", false, "")
		return doc, domain.PdfComplete, nil

	case timedOut && len(text) >= minPartial:
		jobID := s.enqueueFallback(ctx, rawURL, title, domain.PdfReasonPrimaryTimeout, true)
		notice := fmt.Sprintf("[Partial PDF content - extraction timed out after %d seconds]\n\n", int(primary.Seconds()))
		doc := s.buildDocument(rawURL, title, notice+text, "stream", true, jobID)
		slog.Info("pdf extraction partial",
			slog.String("url", rawURL),
			slog.Int("chars", len(text)),
			slog.String("pdf_job_id", jobID))
		return doc, domain.PdfPartialTimeout, nil

	case timedOut:
		jobID := s.enqueueFallback(ctx, rawURL, title, domain.PdfReasonPrimaryTimeout, false)
		slog.Info("pdf extraction queued for background",
			slog.String("url", rawURL),
			slog.Int("chars", len(text)),
			slog.String("pdf_job_id", jobID))
		return nil, domain.PdfQueuedFallback, nil

	case ctx.Err() != nil:
		// The caller's own deadline or cancellation; the caller decides
		// whether a fallback job makes sense.
		return nil, domain.PdfFailed, fmt.Errorf("op=pdf.Extract: %w", ctx.Err())

	default:
		err := streamErr
		if err == nil {
			err = errors.New("stream produced no text")
		}
		s.enqueueFallback(ctx, rawURL, title, domain.PdfReasonPrimaryFailed, len(text) >= minPartial)
		return nil, domain.PdfFailed, fmt.Errorf("op=pdf.Extract: %w", err)
	}
}

// streamText consumes the extraction stream, merging chunks with the
// prefix/suffix rule: a chunk that restates everything so far replaces the
// accumulator, an already-seen tail is dropped, anything else appends.
func (s *Service) streamText(ctx domain.Context, rawURL string) (string, error) {
	stream, err := s.AI.ChatStream(ctx, domain.ChatRequest{
		Model: s.Model,
		Messages: []domain.ChatMessage{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: rawURL},
		},
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = stream.Close() }()

	acc := ""
	for {
		chunk, rerr := stream.Recv()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return strings.TrimSpace(acc), nil
			}
			if ctx.Err() != nil {
				return strings.TrimSpace(acc), ctx.Err()
			}
			return strings.TrimSpace(acc), rerr
		}
		acc = mergeChunk(acc, chunk)
	}
}

func mergeChunk(acc, chunk string) string {
	if chunk == "" {
		return acc
	}
	if strings.HasPrefix(chunk, acc) {
		return chunk
	}
	if strings.HasSuffix(acc, chunk) {
		return acc
	}
	return acc + chunk
}

// enqueueFallback creates the background extraction job. The session comes
// from the context; without one the job cannot be scoped and is skipped.
func (s *Service) enqueueFallback(ctx domain.Context, rawURL, title, reason string, partialAvailable bool) string {
	if s.Jobs == nil {
		return ""
	}
	sess := observability.SessionFromContext(ctx)
	if sess.SessionID == "" {
		slog.Warn("pdf fallback skipped, no session in context", slog.String("url", rawURL))
		return ""
	}
	id, err := s.Jobs.Create(ctx, domain.PdfJob{
		SessionID:            sess.SessionID,
		SourceURL:            rawURL,
		Title:                title,
		Status:               domain.JobQueued,
		Reason:               reason,
		PartialTextAvailable: partialAvailable,
		NextRunAt:            time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("pdf fallback enqueue failed",
			slog.String("url", rawURL),
			slog.Any("error", err))
		return ""
	}
	return id
}

func (s *Service) buildDocument(rawURL, title, body, method string, partial bool, jobID string) *domain.Document {
	t := strings.TrimSpace(title)
	if t == "" {
		t = titleFromURL(rawURL)
	}
	return &domain.Document{
		PageContent: "Title: " + t + "\n\n" + body,
		Metadata: domain.DocumentMetadata{
			Source:            rawURL,
			Title:             t,
			ContentType:       "application/pdf",
			IsPDF:             true,
			PartialPDFContent: partial,
			ExtractionMethod:  method,
			ProcessedAt:       time.Now().UTC().Format(time.RFC3339),
			PdfJobID:          jobID,
		},
	}
}

func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return rawURL
	}
	return path.Base(u.Path)
}
