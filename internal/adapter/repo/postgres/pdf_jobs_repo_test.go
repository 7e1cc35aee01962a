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

func TestPdfJobRepo_Create(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewPdfJobRepo(pool)

	job := domain.PdfJob{
		SessionID: "sess-1",
		SourceURL: "https://example.com/paper.pdf",
		Title:     "Example Paper",
		Status:    domain.JobQueued,
		Reason:    domain.PdfReasonScrapeTimeout,
	}
	id, err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pool.execErr = assert.AnError
	_, err = repo.Create(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=pdf_job.create")
}

func TestPdfJobRepo_Create_DuplicateLiveJob(t *testing.T) {
	// ON CONFLICT eats the insert; the existing live job id comes back instead.
	pool := &poolStub{
		execTag: pgconn.NewCommandTag("INSERT 0 0"),
		row: rowStub{scan: func(dest ...any) error {
			*(dest[0].(*string)) = "existing-job"
			return nil
		}},
	}
	repo := postgres.NewPdfJobRepo(pool)

	id, err := repo.Create(context.Background(), domain.PdfJob{
		SessionID: "sess-1",
		SourceURL: "https://example.com/paper.pdf",
		Status:    domain.JobQueued,
	})
	require.NoError(t, err)
	assert.Equal(t, "existing-job", id)
}

func TestPdfJobRepo_Get(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: pdfRowScan("pdf-1", "queued")}}
	repo := postgres.NewPdfJobRepo(pool)

	job, err := repo.Get(context.Background(), "pdf-1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/paper.pdf", job.SourceURL)

	pool.row = nil
	_, err = repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPdfJobRepo_Claim(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: pdfRowScan("pdf-1", "running")}}
	repo := postgres.NewPdfJobRepo(pool)

	job, ok, err := repo.Claim(context.Background(), "pdf-1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domain.JobRunning, job.Status)

	pool.row = nil
	_, ok, err = repo.Claim(context.Background(), "pdf-1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lost race must not be an error")
}

func TestPdfJobRepo_ListClaimable(t *testing.T) {
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		pdfRowScan("pdf-1", "queued"),
	}}}
	repo := postgres.NewPdfJobRepo(pool)

	jobs, err := repo.ListClaimable(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "pdf-1", jobs[0].ID)
}

func TestPdfJobRepo_TerminalTransitions(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewPdfJobRepo(pool)
	ctx := context.Background()

	require.NoError(t, repo.Complete(ctx, "pdf-1", 42000, 12))
	assert.Contains(t, pool.lastSQL, "status='completed'")
	assert.Equal(t, 42000, pool.lastArgs[1])

	require.NoError(t, repo.Fail(ctx, "pdf-1", "not a pdf"))
	assert.Contains(t, pool.lastSQL, "status='failed'")

	require.NoError(t, repo.Requeue(ctx, "pdf-1", "timeout", 15*time.Second))
	assert.Contains(t, pool.lastSQL, "attempts=attempts+1")
}
