package usecase

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// SessionService exposes the per-session active-task slot and transcript.
type SessionService struct {
	Jobs     domain.ResearchJobRepository
	Sessions domain.SessionStore
}

// NewSessionService constructs a SessionService with its dependencies.
func NewSessionService(j domain.ResearchJobRepository, s domain.SessionStore) SessionService {
	return SessionService{Jobs: j, Sessions: s}
}

// ActiveTask returns the session's active-task slot, re-checked against the
// underlying job on every observation. A slot pointing at a terminal job is
// cleared (only if it still references that job id) and reported as absent.
func (s SessionService) ActiveTask(ctx domain.Context, sessionID string) (domain.ActiveTask, error) {
	if sessionID == "" {
		return domain.ActiveTask{}, fmt.Errorf("%w: session id required", domain.ErrInvalidArgument)
	}
	task, err := s.Sessions.GetActiveTask(ctx, sessionID)
	if err != nil {
		return domain.ActiveTask{}, err
	}
	job, err := s.Jobs.Get(ctx, task.TaskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Orphaned slot: the job record is gone, drop the reference.
			_ = s.Sessions.ClearActiveTaskIfMatches(ctx, sessionID, task.TaskID)
			return domain.ActiveTask{}, fmt.Errorf("op=session.active_task: %w", domain.ErrNotFound)
		}
		return domain.ActiveTask{}, err
	}
	switch job.Status {
	case domain.JobCompleted, domain.JobFailed:
		if cerr := s.Sessions.ClearActiveTaskIfMatches(ctx, sessionID, task.TaskID); cerr != nil {
			slog.Warn("clear stale active task failed",
				slog.String("session_id", sessionID), slog.Any("error", cerr))
		}
		return domain.ActiveTask{}, fmt.Errorf("op=session.active_task: %w", domain.ErrNotFound)
	}
	// Reflect the job's live progress rather than the possibly older slot.
	task.Status = job.Status
	task.CurrentNode = job.CurrentNode
	task.ProgressMessage = job.ProgressMessage
	return task, nil
}

// Messages returns the session transcript, oldest first.
func (s SessionService) Messages(ctx domain.Context, sessionID string, limit int) ([]domain.SessionMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id required", domain.ErrInvalidArgument)
	}
	return s.Sessions.ListMessages(ctx, sessionID, limit)
}
