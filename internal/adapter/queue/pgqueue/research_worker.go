// Package pgqueue implements the durable job queue on Postgres: workers
// poll for claimable jobs, win them with a single conditional update and
// renew a lease while executing.
package pgqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	obsctx "github.com/fairyhunter13/ai-deep-researcher/internal/observability"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/pipeline"
)

// Executor runs one claimed job's pipeline and returns the rendered document.
type Executor interface {
	Execute(ctx domain.Context, job domain.ResearchJob, checkpoint pipeline.CheckpointFunc, progress pipeline.ProgressFunc) (string, error)
}

// ResearchWorker claims and executes research jobs. Multiple workers may
// share the store; the claim update resolves races first-writer-wins.
type ResearchWorker struct {
	Jobs     domain.ResearchJobRepository
	Sessions domain.SessionStore
	Exec     Executor

	WorkerID     string
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
	Backoff      domain.BackoffPolicy
}

// Run polls until ctx is cancelled, then waits for in-flight jobs.
func (w *ResearchWorker) Run(ctx context.Context) error {
	slog.Info("research worker starting",
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
			slog.Info("research worker stopped", slog.String("worker_id", w.WorkerID))
			return nil
		case <-ticker.C:
			w.tick(ctx, sem, &wg)
		}
	}
}

// tick claims up to the free capacity, reading batch×3 candidates to absorb
// lost races.
func (w *ResearchWorker) tick(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	free := w.BatchSize - len(sem)
	if free <= 0 {
		return
	}
	candidates, err := w.Jobs.ListClaimable(ctx, free*3)
	if err != nil {
		slog.Error("list claimable jobs failed", slog.Any("error", err))
		return
	}
	claimed := 0
	for _, c := range candidates {
		if claimed >= free {
			break
		}
		job, ok, cerr := w.Jobs.Claim(ctx, c.ID, w.WorkerID, w.Lease)
		if cerr != nil {
			slog.Error("claim failed", slog.String("job_id", c.ID), slog.Any("error", cerr))
			continue
		}
		if !ok {
			continue
		}
		claimed++
		sem <- struct{}{}
		wg.Add(1)
		go func(job domain.ResearchJob) {
			defer wg.Done()
			defer func() { <-sem }()
			w.execute(ctx, job)
		}(job)
	}
}

func (w *ResearchWorker) execute(ctx context.Context, job domain.ResearchJob) {
	tracer := otel.Tracer("queue.research_worker")
	ctx, span := tracer.Start(ctx, "ResearchJob")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("session.id", job.SessionID),
		attribute.Int("job.attempts", job.Attempts))

	ctx = obsctx.ContextWithSession(ctx, obsctx.Session{UserID: job.UserID, SessionID: job.SessionID})
	observability.StartProcessingJob("research")
	slog.Info("research job claimed",
		slog.String("job_id", job.ID),
		slog.String("worker_id", w.WorkerID),
		slog.Int("attempts", job.Attempts))

	task := domain.ActiveTask{
		TaskID:          job.ID,
		Type:            domain.ActiveTaskTypeResearch,
		Status:          domain.JobRunning,
		CurrentNode:     job.CurrentNode,
		ProgressMessage: job.ProgressMessage,
	}
	if err := w.Sessions.SetActiveTask(ctx, job.UserID, job.SessionID, task); err != nil {
		slog.Warn("set active task failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}

	// Checkpoints double as lease renewals: losing the lease aborts the run
	// before a competing worker's copy can diverge.
	checkpoint := func(ctx domain.Context, finished domain.StageTag, state map[string]any, next *domain.StageTag) error {
		if err := w.Jobs.ExtendLease(ctx, job.ID, w.WorkerID, w.Lease); err != nil {
			return err
		}
		return w.Jobs.SaveCheckpoint(ctx, job.ID, state, next)
	}

	var (
		stageStart = time.Now()
		lastStage  domain.StageTag
	)
	progress := func(ctx domain.Context, stage domain.StageTag, message string) error {
		if lastStage != "" {
			observability.ObserveStage(string(lastStage), time.Since(stageStart))
		}
		lastStage, stageStart = stage, time.Now()
		if err := w.Jobs.UpdateProgress(ctx, job.ID, stage, message); err != nil {
			return err
		}
		_ = w.Sessions.UpdateActiveTaskStatusIfMatches(ctx, job.SessionID, job.ID, domain.JobRunning, stage, message)
		return nil
	}

	result, err := w.Exec.Execute(ctx, job, checkpoint, progress)
	if lastStage != "" {
		observability.ObserveStage(string(lastStage), time.Since(stageStart))
	}
	if err != nil {
		w.handleFailure(ctx, job, err)
		return
	}

	// The completion message is best-effort; the document itself is durable
	// on the job record.
	if _, merr := w.Sessions.AppendMessage(ctx, domain.SessionMessage{
		UserID:    job.UserID,
		SessionID: job.SessionID,
		Role:      "assistant",
		Content:   result,
	}); merr != nil {
		slog.Warn("persist completion message failed", slog.String("job_id", job.ID), slog.Any("error", merr))
	}
	if err := w.Jobs.Complete(ctx, job.ID, result); err != nil {
		slog.Error("mark job completed failed", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	if err := w.Sessions.ClearActiveTaskIfMatches(ctx, job.SessionID, job.ID); err != nil {
		slog.Warn("clear active task failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	observability.CompleteJob("research")
	slog.Info("research job completed", slog.String("job_id", job.ID))
}

func (w *ResearchWorker) handleFailure(ctx context.Context, job domain.ResearchJob, cause error) {
	slog.Error("research job failed",
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempts),
		slog.Any("error", cause))
	if w.Backoff.Exhausted(job.Attempts) {
		if err := w.Jobs.Fail(ctx, job.ID, cause.Error()); err != nil {
			slog.Error("mark job failed failed", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		if err := w.Sessions.ClearActiveTaskIfMatches(ctx, job.SessionID, job.ID); err != nil {
			slog.Warn("clear active task failed", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		observability.FailJob("research")
		return
	}
	delay := w.Backoff.Delay(job.Attempts)
	if err := w.Jobs.Requeue(ctx, job.ID, cause.Error(), delay); err != nil {
		slog.Error("requeue failed", slog.String("job_id", job.ID), slog.Any("error", err))
		return
	}
	_ = w.Sessions.UpdateActiveTaskStatusIfMatches(ctx, job.SessionID, job.ID,
		domain.JobQueued, domain.StageQueued, domain.ProgressMessage(domain.StageQueued))
	slog.Info("research job requeued",
		slog.String("job_id", job.ID),
		slog.Duration("delay", delay))
}
