package pgqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// PdfWorker claims background PDF jobs, extracts the document in memory and
// atomically replaces the session's vector entries for that source URL.
type PdfWorker struct {
	Jobs   domain.PdfJobRepository
	PDF    domain.PDFService
	Vector domain.VectorStore

	WorkerID     string
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
	Backoff      domain.BackoffPolicy
}

// Run polls until ctx is cancelled, then waits for in-flight extractions.
func (w *PdfWorker) Run(ctx context.Context) error {
	slog.Info("pdf worker starting",
		slog.String("worker_id", w.WorkerID),
		slog.Int("batch_size", w.BatchSize))
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, w.BatchSize)
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			slog.Info("pdf worker stopped", slog.String("worker_id", w.WorkerID))
			return nil
		case <-ticker.C:
			w.tick(ctx, sem, &wg)
		}
	}
}

func (w *PdfWorker) tick(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	free := w.BatchSize - len(sem)
	if free <= 0 {
		return
	}
	candidates, err := w.Jobs.ListClaimable(ctx, free*3)
	if err != nil {
		slog.Error("list claimable pdf jobs failed", slog.Any("error", err))
		return
	}
	claimed := 0
	for _, c := range candidates {
		if claimed >= free {
			break
		}
		job, ok, cerr := w.Jobs.Claim(ctx, c.ID, w.WorkerID, w.Lease)
		if cerr != nil {
			slog.Error("pdf claim failed", slog.String("job_id", c.ID), slog.Any("error", cerr))
			continue
		}
		if !ok {
			continue
		}
		claimed++
		sem <- struct{}{}
		wg.Add(1)
		go func(job domain.PdfJob) {
			defer wg.Done()
			defer func() { <-sem }()
			w.execute(ctx, job)
		}(job)
	}
}

func (w *PdfWorker) execute(ctx context.Context, job domain.PdfJob) {
	tracer := otel.Tracer("queue.pdf_worker")
	ctx, span := tracer.Start(ctx, "PdfJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("pdf.url", job.SourceURL),
		attribute.Int("job.attempts", job.Attempts))

	observability.StartProcessingJob("pdf")
	slog.Info("pdf job claimed",
		slog.String("job_id", job.ID),
		slog.String("url", job.SourceURL),
		slog.String("reason", job.Reason))

	doc, pages, err := w.PDF.ExtractInMemory(ctx, job.SourceURL, job.Title)
	if err != nil {
		w.handleFailure(ctx, job, err)
		return
	}
	if doc == nil || doc.PageContent == "" {
		w.handleFailure(ctx, job, fmt.Errorf("extraction produced no text"))
		return
	}
	if err := w.Vector.ReplaceBySource(ctx, job.SessionID, *doc); err != nil {
		w.handleFailure(ctx, job, err)
		return
	}
	if err := w.Jobs.Complete(ctx, job.ID, len(doc.PageContent), pages); err != nil {
		slog.Error("mark pdf job completed failed", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	observability.CompleteJob("pdf")
	observability.ObservePdfExtraction("background_complete")
	slog.Info("pdf job completed",
		slog.String("job_id", job.ID),
		slog.Int("characters", len(doc.PageContent)),
		slog.Int("pages", pages))
}

func (w *PdfWorker) handleFailure(ctx context.Context, job domain.PdfJob, cause error) {
	slog.Error("pdf job failed",
		slog.String("job_id", job.ID),
		slog.String("url", job.SourceURL),
		slog.Int("attempts", job.Attempts),
		slog.Any("error", cause))
	if w.Backoff.Exhausted(job.Attempts) {
		if err := w.Jobs.Fail(ctx, job.ID, cause.Error()); err != nil {
			slog.Error("mark pdf job failed failed", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		observability.FailJob("pdf")
		observability.ObservePdfExtraction("background_failed")
		return
	}
	delay := w.Backoff.Delay(job.Attempts)
	if err := w.Jobs.Requeue(ctx, job.ID, cause.Error(), delay); err != nil {
		slog.Error("pdf requeue failed", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	slog.Info("pdf job requeued", slog.String("job_id", job.ID), slog.Duration("delay", delay))
}
