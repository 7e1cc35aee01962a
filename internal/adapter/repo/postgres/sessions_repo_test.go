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

func TestSessionRepo_SetActiveTask(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewSessionRepo(pool)

	task := domain.ActiveTask{
		TaskID: "job-1",
		Status: domain.JobQueued,
	}
	require.NoError(t, repo.SetActiveTask(context.Background(), "user-1", "sess-1", task))
	assert.Equal(t, domain.ActiveTaskTypeResearch, pool.lastArgs[3], "empty task type defaults to research")

	pool.execErr = assert.AnError
	err := repo.SetActiveTask(context.Background(), "user-1", "sess-1", task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=session.set_active_task")
}

func TestSessionRepo_GetActiveTask(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*(dest[0].(*string)) = "job-1"
		*(dest[1].(*string)) = domain.ActiveTaskTypeResearch
		*(dest[2].(*string)) = "running"
		*(dest[3].(*string)) = "generate_perspectives"
		*(dest[4].(*string)) = "Ensuring all important angles of your idea are covered."
		*(dest[5].(*time.Time)) = time.Now().UTC()
		return nil
	}}}
	repo := postgres.NewSessionRepo(pool)

	task, err := repo.GetActiveTask(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", task.TaskID)
	assert.Equal(t, domain.JobRunning, task.Status)
	assert.Equal(t, domain.StagePerspectives, task.CurrentNode)

	pool.row = nil
	_, err = repo.GetActiveTask(context.Background(), "sess-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSessionRepo_UpdateActiveTaskStatusIfMatches(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewSessionRepo(pool)

	err := repo.UpdateActiveTaskStatusIfMatches(context.Background(), "sess-1", "job-1",
		domain.JobRunning, domain.StageOutline, "Thinking about the best structure for the document.")
	require.NoError(t, err)

	// A newer job owns the slot: zero rows is a silent no-op.
	pool.execTag = pgconn.NewCommandTag("UPDATE 0")
	err = repo.UpdateActiveTaskStatusIfMatches(context.Background(), "sess-1", "stale-job",
		domain.JobFailed, domain.StageFailed, "failed")
	require.NoError(t, err)
}

func TestSessionRepo_ClearActiveTaskIfMatches(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 1")}
	repo := postgres.NewSessionRepo(pool)

	require.NoError(t, repo.ClearActiveTaskIfMatches(context.Background(), "sess-1", "job-1"))

	pool.execTag = pgconn.NewCommandTag("DELETE 0")
	require.NoError(t, repo.ClearActiveTaskIfMatches(context.Background(), "sess-1", "stale-job"))

	pool.execErr = assert.AnError
	err := repo.ClearActiveTaskIfMatches(context.Background(), "sess-1", "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=session.clear_active_task")
}

func TestSessionRepo_AppendMessage(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := postgres.NewSessionRepo(pool)

	id, err := repo.AppendMessage(context.Background(), domain.SessionMessage{
		UserID:    "user-1",
		SessionID: "sess-1",
		Role:      "assistant",
		Content:   "# Report\n...",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id, "append must generate an id when none is given")

	pool.execErr = assert.AnError
	_, err = repo.AppendMessage(context.Background(), domain.SessionMessage{SessionID: "sess-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=session.append_message")
}

func TestSessionRepo_ListMessages(t *testing.T) {
	msgScan := func(id, role string) func(dest ...any) error {
		return func(dest ...any) error {
			*(dest[0].(*string)) = id
			*(dest[1].(*string)) = "user-1"
			*(dest[2].(*string)) = "sess-1"
			*(dest[3].(*string)) = role
			*(dest[4].(*string)) = "hello"
			*(dest[5].(*time.Time)) = time.Now().UTC()
			return nil
		}
	}
	pool := &poolStub{rows: &rowsStub{scans: []func(dest ...any) error{
		msgScan("m-1", "user"),
		msgScan("m-2", "assistant"),
	}}}
	repo := postgres.NewSessionRepo(pool)

	msgs, err := repo.ListMessages(context.Background(), "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[1].Role)
	// limit<=0 falls back to the default page size.
	assert.Equal(t, 100, pool.lastArgs[1])
}
