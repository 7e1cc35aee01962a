// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// ResearchService orchestrates job creation and observation for research runs.
type ResearchService struct {
	Jobs     domain.ResearchJobRepository
	Sessions domain.SessionStore
}

// NewResearchService constructs a ResearchService with its dependencies.
func NewResearchService(j domain.ResearchJobRepository, s domain.SessionStore) ResearchService {
	return ResearchService{Jobs: j, Sessions: s}
}

// Enqueue validates identifiers, enforces the one-in-flight-job-per-session
// rule and writes a new queued job. An empty research idea is accepted; the
// pipeline completes such jobs with a fixed assistant message. When idemKey
// is set and a job with that key already exists, its id is returned instead
// of creating a duplicate.
func (s ResearchService) Enqueue(ctx domain.Context, userID, sessionID string, req domain.ResearchRequest, idemKey string) (string, error) {
	if userID == "" || sessionID == "" {
		return "", fmt.Errorf("%w: user_id and session_id required", domain.ErrInvalidArgument)
	}
	if idemKey != "" {
		if j, err := s.Jobs.FindByIdempotencyKey(ctx, idemKey); err == nil && j.ID != "" {
			slog.Info("idempotent enqueue hit", slog.String("job_id", j.ID))
			return j.ID, nil
		}
	}
	if j, err := s.Jobs.ActiveForSession(ctx, sessionID); err == nil && j.ID != "" {
		return "", fmt.Errorf("%w: session already has research job %s in flight", domain.ErrConflict, j.ID)
	}

	resume := domain.StageOutline
	job := domain.ResearchJob{
		UserID:          userID,
		SessionID:       sessionID,
		Status:          domain.JobQueued,
		CurrentNode:     domain.StageQueued,
		ProgressMessage: domain.ProgressMessage(domain.StageQueued),
		ResumeFromNode:  &resume,
		GraphState:      map[string]any{"research_idea": req.ResearchIdea},
		Request:         req,
	}
	if idemKey != "" {
		job.IdemKey = &idemKey
	}
	jobID, err := s.Jobs.Create(ctx, job)
	if err != nil {
		return "", err
	}

	// The tracker is advisory; a failed write must not lose the job.
	task := domain.ActiveTask{
		TaskID:          jobID,
		Type:            domain.ActiveTaskTypeResearch,
		Status:          domain.JobQueued,
		CurrentNode:     domain.StageQueued,
		ProgressMessage: domain.ProgressMessage(domain.StageQueued),
	}
	if err := s.Sessions.SetActiveTask(ctx, userID, sessionID, task); err != nil {
		slog.Warn("set active task failed after enqueue",
			slog.String("job_id", jobID), slog.Any("error", err))
	}
	slog.Info("research job enqueued",
		slog.String("job_id", jobID),
		slog.String("session_id", sessionID),
		slog.String("model_tier", string(req.ModelTier)))
	return jobID, nil
}

// Get returns the full job record.
func (s ResearchService) Get(ctx domain.Context, id string) (domain.ResearchJob, error) {
	if id == "" {
		return domain.ResearchJob{}, fmt.Errorf("%w: job id required", domain.ErrInvalidArgument)
	}
	return s.Jobs.Get(ctx, id)
}
