package postgres

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
)

// SessionRepo implements domain.SessionStore: the single-slot active-task
// tracker and the session transcript. Every active-task mutation except
// SetActiveTask is conditional on the stored task id so a newer job queued in
// the same session is never clobbered.
type SessionRepo struct{ Pool PgxPool }

// NewSessionRepo constructs a SessionRepo with the given pool.
func NewSessionRepo(p PgxPool) *SessionRepo { return &SessionRepo{Pool: p} }

// SetActiveTask installs (or replaces) the session's active-task slot.
func (r *SessionRepo) SetActiveTask(ctx domain.Context, userID, sessionID string, task domain.ActiveTask) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.SetActiveTask")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID), attribute.String("task.id", task.TaskID))
	taskType := task.Type
	if taskType == "" {
		taskType = domain.ActiveTaskTypeResearch
	}
	q := `INSERT INTO session_active_tasks
		(session_id, user_id, task_id, task_type, status, current_node, progress_message, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (session_id) DO UPDATE SET
			user_id=EXCLUDED.user_id, task_id=EXCLUDED.task_id, task_type=EXCLUDED.task_type,
			status=EXCLUDED.status, current_node=EXCLUDED.current_node,
			progress_message=EXCLUDED.progress_message, updated_at=now()`
	_, err := r.Pool.Exec(ctx, q, sessionID, userID, task.TaskID, taskType,
		string(task.Status), string(task.CurrentNode), task.ProgressMessage)
	if err != nil {
		return fmt.Errorf("op=session.set_active_task: %w", err)
	}
	return nil
}

// GetActiveTask returns the session's slot or ErrNotFound when empty.
func (r *SessionRepo) GetActiveTask(ctx domain.Context, sessionID string) (domain.ActiveTask, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.GetActiveTask")
	defer span.End()
	q := `SELECT task_id, task_type, status, current_node, progress_message, updated_at
		FROM session_active_tasks WHERE session_id=$1`
	row := r.Pool.QueryRow(ctx, q, sessionID)
	var (
		t      domain.ActiveTask
		status string
		node   string
	)
	if err := row.Scan(&t.TaskID, &t.Type, &status, &node, &t.ProgressMessage, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ActiveTask{}, fmt.Errorf("op=session.get_active_task: %w", domain.ErrNotFound)
		}
		return domain.ActiveTask{}, fmt.Errorf("op=session.get_active_task: %w", err)
	}
	t.Status = domain.JobStatus(status)
	t.CurrentNode = domain.StageTag(node)
	return t, nil
}

// UpdateActiveTaskStatusIfMatches updates the slot only while it still
// references taskID. A zero-row update is a recorded no-op, never an error.
func (r *SessionRepo) UpdateActiveTaskStatusIfMatches(ctx domain.Context, sessionID, taskID string, status domain.JobStatus, node domain.StageTag, message string) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.UpdateActiveTaskStatusIfMatches")
	defer span.End()
	q := `UPDATE session_active_tasks SET status=$3, current_node=$4, progress_message=$5, updated_at=now()
		WHERE session_id=$1 AND task_id=$2`
	tag, err := r.Pool.Exec(ctx, q, sessionID, taskID, string(status), string(node), message)
	if err != nil {
		return fmt.Errorf("op=session.update_active_task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Debug("active task update skipped; slot references a different task",
			slog.String("session_id", sessionID), slog.String("task_id", taskID))
	}
	return nil
}

// ClearActiveTaskIfMatches removes the slot only while it still references
// taskID.
func (r *SessionRepo) ClearActiveTaskIfMatches(ctx domain.Context, sessionID, taskID string) error {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.ClearActiveTaskIfMatches")
	defer span.End()
	q := `DELETE FROM session_active_tasks WHERE session_id=$1 AND task_id=$2`
	tag, err := r.Pool.Exec(ctx, q, sessionID, taskID)
	if err != nil {
		return fmt.Errorf("op=session.clear_active_task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Debug("active task clear skipped; slot references a different task",
			slog.String("session_id", sessionID), slog.String("task_id", taskID))
	}
	return nil
}

// AppendMessage appends one transcript entry and returns its id.
func (r *SessionRepo) AppendMessage(ctx domain.Context, m domain.SessionMessage) (string, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.AppendMessage")
	defer span.End()
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO session_messages (id, user_id, session_id, role, content, created_at) VALUES ($1,$2,$3,$4,$5,$6)`
	if _, err := r.Pool.Exec(ctx, q, id, m.UserID, m.SessionID, m.Role, m.Content, created); err != nil {
		return "", fmt.Errorf("op=session.append_message: %w", err)
	}
	return id, nil
}

// ListMessages returns the session transcript in chronological order.
func (r *SessionRepo) ListMessages(ctx domain.Context, sessionID string, limit int) ([]domain.SessionMessage, error) {
	tracer := otel.Tracer("repo.sessions")
	ctx, span := tracer.Start(ctx, "sessions.ListMessages")
	defer span.End()
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, user_id, session_id, role, content, created_at FROM session_messages
		WHERE session_id=$1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("op=session.list_messages: %w", err)
	}
	defer rows.Close()
	var out []domain.SessionMessage
	for rows.Next() {
		var m domain.SessionMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=session.list_messages: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=session.list_messages: %w", err)
	}
	return out, nil
}
