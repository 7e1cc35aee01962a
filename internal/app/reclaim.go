package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// LeaseReclaimer sweeps running research jobs whose lease deadline passed,
// which happens when a worker dies mid-run. Reclaimed jobs go back to the
// queue with attempts+1 so the next worker resumes from the last checkpoint,
// or fail terminally once the retry budget is spent.
type LeaseReclaimer struct {
	Jobs     domain.ResearchJobRepository
	Sessions domain.SessionStore
	Backoff  domain.BackoffPolicy
	Interval time.Duration
	Batch    int
}

// Run sweeps on a fixed interval until the context is cancelled. The first
// sweep happens immediately so restarts recover orphans without waiting.
func (r *LeaseReclaimer) Run(ctx context.Context) {
	if r == nil || r.Jobs == nil {
		return
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("lease reclaimer stopping")
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *LeaseReclaimer) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.reclaimer")
	ctx, span := tracer.Start(ctx, "LeaseReclaimer.sweepOnce")
	defer span.End()

	batch := r.Batch
	if batch <= 0 {
		batch = 100
	}
	jobs, err := r.Jobs.ListExpiredLeases(ctx, time.Now().UTC(), batch)
	if err != nil {
		span.RecordError(err)
		slog.Error("lease reclaim list failed", slog.Any("error", err))
		return
	}
	requeued, failed := 0, 0
	for _, j := range jobs {
		const msg = "worker lease expired"
		if r.Backoff.Exhausted(j.Attempts) {
			if err := r.Jobs.Fail(ctx, j.ID, msg); err != nil {
				slog.Error("lease reclaim fail-job failed",
					slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			if r.Sessions != nil {
				_ = r.Sessions.ClearActiveTaskIfMatches(ctx, j.SessionID, j.ID)
			}
			failed++
			slog.Warn("research job failed after lease loss",
				slog.String("job_id", j.ID), slog.Int("attempts", j.Attempts))
			continue
		}
		if err := r.Jobs.Requeue(ctx, j.ID, msg, r.Backoff.Delay(j.Attempts)); err != nil {
			slog.Error("lease reclaim requeue failed",
				slog.String("job_id", j.ID), slog.Any("error", err))
			continue
		}
		if r.Sessions != nil {
			_ = r.Sessions.UpdateActiveTaskStatusIfMatches(ctx, j.SessionID, j.ID,
				domain.JobQueued, domain.StageQueued, domain.ProgressMessage(domain.StageQueued))
		}
		requeued++
		slog.Info("research job reclaimed",
			slog.String("job_id", j.ID),
			slog.Int("attempts", j.Attempts),
			slog.Any("resume_from", j.ResumeFromNode))
	}
	span.SetAttributes(
		attribute.Int("jobs.expired", len(jobs)),
		attribute.Int("jobs.requeued", requeued),
		attribute.Int("jobs.failed", failed),
	)
}
