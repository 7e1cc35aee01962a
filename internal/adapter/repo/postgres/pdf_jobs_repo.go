package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// PdfJobRepo persists background PDF extraction jobs.
type PdfJobRepo struct{ Pool PgxPool }

// NewPdfJobRepo constructs a PdfJobRepo with the given pool.
func NewPdfJobRepo(p PgxPool) *PdfJobRepo { return &PdfJobRepo{Pool: p} }

const pdfJobColumns = `id, session_id, source_url, title, status, attempts, reason,
	partial_text_available, last_error, worker_id, lease_expires_at,
	result_characters, result_page_count, next_run_at, created_at, updated_at`

// Create inserts a new PDF job and returns its id. A live job already queued
// for the same (session, url) wins: its id is returned instead, so callers
// never double-enqueue.
func (r *PdfJobRepo) Create(ctx domain.Context, j domain.PdfJob) (string, error) {
	tracer := otel.Tracer("repo.pdf_jobs")
	ctx, span := tracer.Start(ctx, "pdf_jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	nextRun := j.NextRunAt
	if nextRun.IsZero() {
		nextRun = now
	}
	q := `INSERT INTO pdf_jobs
		(id, session_id, source_url, title, status, attempts, reason, partial_text_available,
		 next_run_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (session_id, source_url) WHERE status IN ('queued','running') DO NOTHING`
	tag, err := r.Pool.Exec(ctx, q,
		id, j.SessionID, j.SourceURL, j.Title, string(j.Status), j.Attempts, j.Reason,
		j.PartialTextAvailable, nextRun, now, now)
	if err != nil {
		return "", fmt.Errorf("op=pdf_job.create: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing := r.Pool.QueryRow(ctx,
			`SELECT id FROM pdf_jobs WHERE session_id=$1 AND source_url=$2 AND status IN ('queued','running') LIMIT 1`,
			j.SessionID, j.SourceURL)
		var existingID string
		if serr := existing.Scan(&existingID); serr == nil {
			return existingID, nil
		}
		return "", fmt.Errorf("op=pdf_job.create: %w", domain.ErrConflict)
	}
	return id, nil
}

// Get loads a PDF job by id.
func (r *PdfJobRepo) Get(ctx domain.Context, id string) (domain.PdfJob, error) {
	tracer := otel.Tracer("repo.pdf_jobs")
	ctx, span := tracer.Start(ctx, "pdf_jobs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+pdfJobColumns+` FROM pdf_jobs WHERE id=$1`, id)
	j, err := scanPdfJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PdfJob{}, fmt.Errorf("op=pdf_job.get: %w", domain.ErrNotFound)
		}
		return domain.PdfJob{}, fmt.Errorf("op=pdf_job.get: %w", err)
	}
	return j, nil
}

// ListClaimable returns up to limit queued jobs whose next_run_at has passed.
func (r *PdfJobRepo) ListClaimable(ctx domain.Context, limit int) ([]domain.PdfJob, error) {
	tracer := otel.Tracer("repo.pdf_jobs")
	ctx, span := tracer.Start(ctx, "pdf_jobs.ListClaimable")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))
	q := `SELECT ` + pdfJobColumns + ` FROM pdf_jobs
		WHERE status='queued' AND next_run_at <= now()
		ORDER BY next_run_at ASC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=pdf_job.list_claimable: %w", err)
	}
	defer rows.Close()
	var out []domain.PdfJob
	for rows.Next() {
		j, serr := scanPdfJob(rows)
		if serr != nil {
			return nil, fmt.Errorf("op=pdf_job.list_claimable: %w", serr)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=pdf_job.list_claimable: %w", err)
	}
	return out, nil
}

// Claim atomically transitions one queued job to running for workerID.
// ok=false reports a lost race, never an error.
func (r *PdfJobRepo) Claim(ctx domain.Context, id, workerID string, lease time.Duration) (domain.PdfJob, bool, error) {
	tracer := otel.Tracer("repo.pdf_jobs")
	ctx, span := tracer.Start(ctx, "pdf_jobs.Claim")
	defer span.End()
	q := `UPDATE pdf_jobs SET
			status='running', worker_id=$2,
			lease_expires_at=now() + make_interval(secs => $3), updated_at=now()
		WHERE id=$1 AND status='queued' AND next_run_at <= now()
		RETURNING ` + pdfJobColumns
	row := r.Pool.QueryRow(ctx, q, id, workerID, lease.Seconds())
	j, err := scanPdfJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PdfJob{}, false, nil
		}
		return domain.PdfJob{}, false, fmt.Errorf("op=pdf_job.claim: %w", err)
	}
	return j, true, nil
}

// Complete records the extraction result sizes and marks the job done.
func (r *PdfJobRepo) Complete(ctx domain.Context, id string, characters, pageCount int) error {
	tracer := otel.Tracer("repo.pdf_jobs")
	ctx, span := tracer.Start(ctx, "pdf_jobs.Complete")
	defer span.End()
	q := `UPDATE pdf_jobs SET
			status='completed', result_characters=$2, result_page_count=$3,
			worker_id=NULL, lease_expires_at=NULL, last_error=NULL, updated_at=now()
		WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, characters, pageCount); err != nil {
		return fmt.Errorf("op=pdf_job.complete: %w", err)
	}
	return nil
}

// Fail marks the job permanently failed.
func (r *PdfJobRepo) Fail(ctx domain.Context, id, errMsg string) error {
	tracer := otel.Tracer("repo.pdf_jobs")
	ctx, span := tracer.Start(ctx, "pdf_jobs.Fail")
	defer span.End()
	q := `UPDATE pdf_jobs SET status='failed', last_error=$2, worker_id=NULL, lease_expires_at=NULL, updated_at=now() WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, errMsg); err != nil {
		return fmt.Errorf("op=pdf_job.fail: %w", err)
	}
	return nil
}

// Requeue re-queues a failed attempt with the given delay.
func (r *PdfJobRepo) Requeue(ctx domain.Context, id, errMsg string, delay time.Duration) error {
	tracer := otel.Tracer("repo.pdf_jobs")
	ctx, span := tracer.Start(ctx, "pdf_jobs.Requeue")
	defer span.End()
	q := `UPDATE pdf_jobs SET
			status='queued', attempts=attempts+1, last_error=$2, worker_id=NULL,
			lease_expires_at=NULL, next_run_at=now() + make_interval(secs => $3), updated_at=now()
		WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, errMsg, delay.Seconds()); err != nil {
		return fmt.Errorf("op=pdf_job.requeue: %w", err)
	}
	return nil
}

func scanPdfJob(row pgx.Row) (domain.PdfJob, error) {
	var (
		j      domain.PdfJob
		status string
	)
	err := row.Scan(&j.ID, &j.SessionID, &j.SourceURL, &j.Title, &status, &j.Attempts, &j.Reason,
		&j.PartialTextAvailable, &j.LastError, &j.WorkerID, &j.LeaseExpiresAt,
		&j.ResultCharacters, &j.ResultPageCount, &j.NextRunAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return domain.PdfJob{}, err
	}
	j.Status = domain.JobStatus(status)
	return j, nil
}
