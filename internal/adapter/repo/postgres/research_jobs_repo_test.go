package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

func TestResearchJobRepo_Create(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewResearchJobRepo(pool)
	ctx := context.Background()

	job := domain.ResearchJob{
		UserID:    "user-1",
		SessionID: "sess-1",
		Status:    domain.JobQueued,
		Request: domain.ResearchRequest{
			ResearchIdea:   "impact of microplastics on coastal fisheries",
			ModelTier:      domain.TierMini,
			Breadth:        domain.Breadth(domain.LevelMedium),
			Depth:          domain.Depth(domain.LevelMedium),
			DocumentLength: domain.DocumentLength(domain.LevelMedium),
		},
	}

	id, err := repo.Create(ctx, job)
	require.NoError(t, err)
	assert.NotEmpty(t, id, "create must generate an id when none is given")

	// Database error surfaces wrapped.
	pool.execErr = assert.AnError
	_, err = repo.Create(ctx, job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=research_job.create")
}

func TestResearchJobRepo_Get(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: researchRowScan("job-1", "queued", "queued", []byte(`{"idea":"x"}`))}}
	repo := postgres.NewResearchJobRepo(pool)

	job, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Equal(t, "x", job.GraphState["idea"])

	// Missing row maps to the domain sentinel.
	pool.row = nil
	_, err = repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResearchJobRepo_Get_CorruptState(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: researchRowScan("job-1", "queued", "queued", []byte(`{broken`))}}
	repo := postgres.NewResearchJobRepo(pool)

	job, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err, "a corrupt checkpoint must not make the job unreadable")
	assert.Nil(t, job.GraphState)
}

func TestResearchJobRepo_Claim(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: researchRowScan("job-1", "running", "preparing", nil)}}
	repo := postgres.NewResearchJobRepo(pool)

	job, ok, err := repo.Claim(context.Background(), "job-1", "worker-a", 2*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.JobRunning, job.Status)
	assert.Equal(t, "worker-a", pool.lastArgs[1])

	// Zero rows back means another worker won the race; not an error.
	pool.row = nil
	_, ok, err = repo.Claim(context.Background(), "job-1", "worker-b", 2*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResearchJobRepo_ExtendLease(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewResearchJobRepo(pool)

	require.NoError(t, repo.ExtendLease(context.Background(), "job-1", "worker-a", time.Minute))

	// Zero rows affected means the reclaimer took the job away.
	pool.execTag = pgconn.NewCommandTag("UPDATE 0")
	err := repo.ExtendLease(context.Background(), "job-1", "worker-a", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLeaseLost))
}

func TestResearchJobRepo_SaveCheckpoint(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewResearchJobRepo(pool)

	next := domain.StagePerspectives
	err := repo.SaveCheckpoint(context.Background(), "job-1", map[string]any{"outline": "..."}, &next)
	require.NoError(t, err)
	assert.Equal(t, "generate_perspectives", *pool.lastArgs[2].(*string))

	// Unserializable state is rejected before touching the database.
	err = repo.SaveCheckpoint(context.Background(), "job-1", map[string]any{"bad": make(chan int)}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph_state")
}

func TestResearchJobRepo_Requeue(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewResearchJobRepo(pool)

	err := repo.Requeue(context.Background(), "job-1", "stage timeout", 20*time.Second)
	require.NoError(t, err)
	assert.Contains(t, pool.lastSQL, "attempts=attempts+1")
	assert.Equal(t, 20.0, pool.lastArgs[2])
}

func TestResearchJobRepo_ListClaimable(t *testing.T) {
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		researchRowScan("job-1", "queued", "queued", nil),
		researchRowScan("job-2", "queued", "queued", nil),
	}}}
	repo := postgres.NewResearchJobRepo(pool)

	jobs, err := repo.ListClaimable(context.Background(), 6)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[1].ID)

	pool.queryErr = assert.AnError
	_, err = repo.ListClaimable(context.Background(), 6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=research_job.list_claimable")
}

func TestResearchJobRepo_ListExpiredLeases(t *testing.T) {
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		researchRowScan("job-1", "running", "generate_perspectives", nil),
	}}}
	repo := postgres.NewResearchJobRepo(pool)

	jobs, err := repo.ListExpiredLeases(context.Background(), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobRunning, jobs[0].Status)
}

func TestResearchJobRepo_ActiveForSession_NotFound(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewResearchJobRepo(pool)

	_, err := repo.ActiveForSession(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResearchJobRepo_TerminalTransitions(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewResearchJobRepo(pool)
	ctx := context.Background()

	require.NoError(t, repo.Complete(ctx, "job-1", "# Report\n..."))
	assert.Contains(t, pool.lastSQL, "status='completed'")

	require.NoError(t, repo.Fail(ctx, "job-1", "retries exhausted"))
	assert.Contains(t, pool.lastSQL, "status='failed'")

	pool.execErr = assert.AnError
	err := repo.Complete(ctx, "job-1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=research_job.complete")
}
