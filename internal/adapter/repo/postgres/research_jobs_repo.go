package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// ResearchJobRepo persists research jobs using a minimal pgx pool.
type ResearchJobRepo struct{ Pool PgxPool }

// NewResearchJobRepo constructs a ResearchJobRepo with the given pool.
func NewResearchJobRepo(p PgxPool) *ResearchJobRepo { return &ResearchJobRepo{Pool: p} }

const researchJobColumns = `id, user_id, session_id, status, current_node, progress_message,
	resume_from_node, attempts, worker_id, lease_expires_at, error, result_text, graph_state,
	research_idea, model_tier, breadth, depth, document_length, idempotency_key,
	next_run_at, created_at, updated_at, started_at, completed_at, failed_at`

// Create inserts a new job and returns its id.
func (r *ResearchJobRepo) Create(ctx domain.Context, j domain.ResearchJob) (string, error) {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	state, err := json.Marshal(j.GraphState)
	if err != nil {
		return "", fmt.Errorf("op=research_job.create: graph_state: %w", err)
	}
	now := time.Now().UTC()
	nextRun := j.NextRunAt
	if nextRun.IsZero() {
		nextRun = now
	}
	q := `INSERT INTO research_jobs
		(id, user_id, session_id, status, current_node, progress_message, resume_from_node,
		 attempts, graph_state, research_idea, model_tier, breadth, depth, document_length,
		 idempotency_key, next_run_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	_, err = r.Pool.Exec(ctx, q,
		id, j.UserID, j.SessionID, string(j.Status), string(j.CurrentNode), j.ProgressMessage,
		stageTagPtr(j.ResumeFromNode), j.Attempts, state, j.Request.ResearchIdea,
		string(j.Request.ModelTier), string(j.Request.Breadth), string(j.Request.Depth),
		string(j.Request.DocumentLength), j.IdemKey, nextRun, now, now)
	if err != nil {
		return "", fmt.Errorf("op=research_job.create: %w", err)
	}
	return id, nil
}

// Get loads a job by id.
func (r *ResearchJobRepo) Get(ctx domain.Context, id string) (domain.ResearchJob, error) {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+researchJobColumns+` FROM research_jobs WHERE id=$1`, id)
	j, err := scanResearchJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResearchJob{}, fmt.Errorf("op=research_job.get: %w", domain.ErrNotFound)
		}
		return domain.ResearchJob{}, fmt.Errorf("op=research_job.get: %w", err)
	}
	return j, nil
}

// FindByIdempotencyKey loads a job by idempotency key.
func (r *ResearchJobRepo) FindByIdempotencyKey(ctx domain.Context, key string) (domain.ResearchJob, error) {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.FindByIdempotencyKey")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+researchJobColumns+` FROM research_jobs WHERE idempotency_key=$1 LIMIT 1`, key)
	j, err := scanResearchJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResearchJob{}, fmt.Errorf("op=research_job.find_idem: %w", domain.ErrNotFound)
		}
		return domain.ResearchJob{}, fmt.Errorf("op=research_job.find_idem: %w", err)
	}
	return j, nil
}

// ListClaimable returns up to limit queued jobs whose next_run_at has passed,
// oldest first.
func (r *ResearchJobRepo) ListClaimable(ctx domain.Context, limit int) ([]domain.ResearchJob, error) {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.ListClaimable")
	defer span.End()
	span.SetAttributes(attribute.Int("limit", limit))
	q := `SELECT ` + researchJobColumns + ` FROM research_jobs
		WHERE status='queued' AND next_run_at <= now()
		ORDER BY next_run_at ASC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("op=research_job.list_claimable: %w", err)
	}
	defer rows.Close()
	var out []domain.ResearchJob
	for rows.Next() {
		j, serr := scanResearchJob(rows)
		if serr != nil {
			return nil, fmt.Errorf("op=research_job.list_claimable: %w", serr)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=research_job.list_claimable: %w", err)
	}
	return out, nil
}

// Claim atomically transitions one queued job to running for workerID. The
// single conditional UPDATE is the only cross-worker race point: zero rows
// affected means another worker won, reported as ok=false.
func (r *ResearchJobRepo) Claim(ctx domain.Context, id, workerID string, lease time.Duration) (domain.ResearchJob, bool, error) {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.Claim")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", id), attribute.String("worker.id", workerID))
	q := `UPDATE research_jobs SET
			status='running',
			worker_id=$2,
			lease_expires_at=now() + make_interval(secs => $3),
			started_at=COALESCE(started_at, now()),
			current_node=CASE WHEN current_node IN ('', 'queued') THEN 'preparing' ELSE current_node END,
			progress_message=CASE WHEN current_node IN ('', 'queued') THEN $4 ELSE progress_message END,
			updated_at=now()
		WHERE id=$1 AND status='queued' AND next_run_at <= now()
		RETURNING ` + researchJobColumns
	row := r.Pool.QueryRow(ctx, q, id, workerID, lease.Seconds(), domain.ProgressMessage(domain.StagePreparing))
	j, err := scanResearchJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResearchJob{}, false, nil
		}
		return domain.ResearchJob{}, false, fmt.Errorf("op=research_job.claim: %w", err)
	}
	return j, true, nil
}

// ExtendLease pushes the lease deadline out while the worker still holds the
// job. ErrLeaseLost reports that the job no longer belongs to workerID.
func (r *ResearchJobRepo) ExtendLease(ctx domain.Context, id, workerID string, lease time.Duration) error {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.ExtendLease")
	defer span.End()
	q := `UPDATE research_jobs SET lease_expires_at=now() + make_interval(secs => $3), updated_at=now()
		WHERE id=$1 AND worker_id=$2 AND status='running'`
	tag, err := r.Pool.Exec(ctx, q, id, workerID, lease.Seconds())
	if err != nil {
		return fmt.Errorf("op=research_job.extend_lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=research_job.extend_lease: %w", domain.ErrLeaseLost)
	}
	return nil
}

// UpdateProgress records the stage about to run and its user-visible message.
func (r *ResearchJobRepo) UpdateProgress(ctx domain.Context, id string, node domain.StageTag, message string) error {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.UpdateProgress")
	defer span.End()
	q := `UPDATE research_jobs SET current_node=$2, progress_message=$3, updated_at=now() WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, string(node), message); err != nil {
		return fmt.Errorf("op=research_job.update_progress: %w", err)
	}
	return nil
}

// SaveCheckpoint writes graph_state and resume_from_node in one statement.
func (r *ResearchJobRepo) SaveCheckpoint(ctx domain.Context, id string, graphState map[string]any, resumeFrom *domain.StageTag) error {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.SaveCheckpoint")
	defer span.End()
	state, err := json.Marshal(graphState)
	if err != nil {
		return fmt.Errorf("op=research_job.save_checkpoint: graph_state: %w", err)
	}
	q := `UPDATE research_jobs SET graph_state=$2, resume_from_node=$3, updated_at=now() WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, state, stageTagPtr(resumeFrom)); err != nil {
		return fmt.Errorf("op=research_job.save_checkpoint: %w", err)
	}
	return nil
}

// Complete marks the job completed with its rendered document. Repeating the
// call with the same result text yields the same record.
func (r *ResearchJobRepo) Complete(ctx domain.Context, id, resultText string) error {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.Complete")
	defer span.End()
	q := `UPDATE research_jobs SET
			status='completed', result_text=$2, worker_id=NULL, resume_from_node=NULL,
			lease_expires_at=NULL, error=NULL,
			current_node='completed', progress_message=$3,
			completed_at=COALESCE(completed_at, now()), updated_at=now()
		WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, resultText, domain.ProgressMessage(domain.StageCompleted)); err != nil {
		return fmt.Errorf("op=research_job.complete: %w", err)
	}
	return nil
}

// Fail marks the job permanently failed.
func (r *ResearchJobRepo) Fail(ctx domain.Context, id, errMsg string) error {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.Fail")
	defer span.End()
	q := `UPDATE research_jobs SET
			status='failed', error=$2, worker_id=NULL, lease_expires_at=NULL,
			current_node='failed', progress_message=$3,
			failed_at=now(), updated_at=now()
		WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, errMsg, domain.ProgressMessage(domain.StageFailed)); err != nil {
		return fmt.Errorf("op=research_job.fail: %w", err)
	}
	return nil
}

// Requeue re-queues a failed attempt: attempts+1, next_run_at pushed out by
// delay, worker cleared, error recorded.
func (r *ResearchJobRepo) Requeue(ctx domain.Context, id, errMsg string, delay time.Duration) error {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.Requeue")
	defer span.End()
	span.SetAttributes(attribute.Float64("delay_seconds", delay.Seconds()))
	q := `UPDATE research_jobs SET
			status='queued', attempts=attempts+1, error=$2, worker_id=NULL,
			lease_expires_at=NULL, next_run_at=now() + make_interval(secs => $3),
			current_node='queued', progress_message=$4, updated_at=now()
		WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, errMsg, delay.Seconds(), domain.ProgressMessage(domain.StageQueued)); err != nil {
		return fmt.Errorf("op=research_job.requeue: %w", err)
	}
	return nil
}

// ActiveForSession returns the session's job in {queued, running}, preferring
// running then most recently updated.
func (r *ResearchJobRepo) ActiveForSession(ctx domain.Context, sessionID string) (domain.ResearchJob, error) {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.ActiveForSession")
	defer span.End()
	q := `SELECT ` + researchJobColumns + ` FROM research_jobs
		WHERE session_id=$1 AND status IN ('queued','running')
		ORDER BY (status='running') DESC, updated_at DESC LIMIT 1`
	row := r.Pool.QueryRow(ctx, q, sessionID)
	j, err := scanResearchJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResearchJob{}, fmt.Errorf("op=research_job.active_for_session: %w", domain.ErrNotFound)
		}
		return domain.ResearchJob{}, fmt.Errorf("op=research_job.active_for_session: %w", err)
	}
	return j, nil
}

// ListExpiredLeases returns running jobs whose lease deadline passed cutoff.
func (r *ResearchJobRepo) ListExpiredLeases(ctx domain.Context, cutoff time.Time, limit int) ([]domain.ResearchJob, error) {
	tracer := otel.Tracer("repo.research_jobs")
	ctx, span := tracer.Start(ctx, "research_jobs.ListExpiredLeases")
	defer span.End()
	q := `SELECT ` + researchJobColumns + ` FROM research_jobs
		WHERE status='running' AND lease_expires_at IS NOT NULL AND lease_expires_at < $1
		ORDER BY lease_expires_at ASC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("op=research_job.list_expired: %w", err)
	}
	defer rows.Close()
	var out []domain.ResearchJob
	for rows.Next() {
		j, serr := scanResearchJob(rows)
		if serr != nil {
			return nil, fmt.Errorf("op=research_job.list_expired: %w", serr)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=research_job.list_expired: %w", err)
	}
	return out, nil
}

// scanResearchJob decodes one row in researchJobColumns order.
func scanResearchJob(row pgx.Row) (domain.ResearchJob, error) {
	var (
		j          domain.ResearchJob
		status     string
		node       string
		resumeFrom *string
		state      []byte
		tier       string
		breadth    string
		depth      string
		length     string
	)
	err := row.Scan(&j.ID, &j.UserID, &j.SessionID, &status, &node, &j.ProgressMessage,
		&resumeFrom, &j.Attempts, &j.WorkerID, &j.LeaseExpiresAt, &j.Error, &j.ResultText, &state,
		&j.Request.ResearchIdea, &tier, &breadth, &depth, &length, &j.IdemKey,
		&j.NextRunAt, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt, &j.FailedAt)
	if err != nil {
		return domain.ResearchJob{}, err
	}
	j.Status = domain.JobStatus(status)
	j.CurrentNode = domain.StageTag(node)
	if resumeFrom != nil {
		tag := domain.StageTag(*resumeFrom)
		j.ResumeFromNode = &tag
	}
	j.Request.ModelTier = domain.ModelTier(tier)
	j.Request.Breadth = domain.Breadth(breadth)
	j.Request.Depth = domain.Depth(depth)
	j.Request.DocumentLength = domain.DocumentLength(length)
	if len(state) > 0 {
		if uerr := json.Unmarshal(state, &j.GraphState); uerr != nil {
			// A corrupt checkpoint must not make the job unreadable; the
			// pipeline treats a nil state as "start from the beginning".
			j.GraphState = nil
		}
	}
	return j, nil
}

func stageTagPtr(t *domain.StageTag) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}
