package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fairyhunter13/ai-deep-researcher/internal/app"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain/mocks"
)

func reclaimBackoff() domain.BackoffPolicy {
	return domain.BackoffPolicy{Initial: 10 * time.Second, Max: 180 * time.Second, MaxRetries: 2}
}

func expiredJob(id string, attempts int) domain.ResearchJob {
	return domain.ResearchJob{
		ID:        id,
		SessionID: "sess-" + id,
		Status:    domain.JobRunning,
		Attempts:  attempts,
	}
}

func TestLeaseReclaimer_RequeuesWithBackoff(t *testing.T) {
	jobs := mocks.NewMockResearchJobRepository(t)
	sessions := mocks.NewMockSessionStore(t)
	r := &app.LeaseReclaimer{Jobs: jobs, Sessions: sessions, Backoff: reclaimBackoff(), Interval: time.Hour}

	jobs.On("ListExpiredLeases", mock.Anything, mock.Anything, 100).
		Return([]domain.ResearchJob{expiredJob("job-1", 0)}, nil).Once()
	jobs.On("Requeue", mock.Anything, "job-1", "worker lease expired", 10*time.Second).
		Return(nil).Once()
	sessions.On("UpdateActiveTaskStatusIfMatches", mock.Anything, "sess-job-1", "job-1",
		domain.JobQueued, domain.StageQueued, mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
}

func TestLeaseReclaimer_FailsExhaustedJob(t *testing.T) {
	jobs := mocks.NewMockResearchJobRepository(t)
	sessions := mocks.NewMockSessionStore(t)
	r := &app.LeaseReclaimer{Jobs: jobs, Sessions: sessions, Backoff: reclaimBackoff(), Interval: time.Hour}

	jobs.On("ListExpiredLeases", mock.Anything, mock.Anything, 100).
		Return([]domain.ResearchJob{expiredJob("job-1", 1)}, nil).Once()
	jobs.On("Fail", mock.Anything, "job-1", "worker lease expired").Return(nil).Once()
	sessions.On("ClearActiveTaskIfMatches", mock.Anything, "sess-job-1", "job-1").Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
}

func TestLeaseReclaimer_ListErrorIsNonFatal(t *testing.T) {
	jobs := mocks.NewMockResearchJobRepository(t)
	r := &app.LeaseReclaimer{Jobs: jobs, Backoff: reclaimBackoff(), Interval: time.Hour}

	jobs.On("ListExpiredLeases", mock.Anything, mock.Anything, 100).
		Return(nil, errors.New("db down")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
}

func TestLeaseReclaimer_NilRepoIsNoop(t *testing.T) {
	var r *app.LeaseReclaimer
	r.Run(context.Background())
	(&app.LeaseReclaimer{}).Run(context.Background())
}
