package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the slice of pgx.Tx the cleanup service needs.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts transactions. Wrap a *pgxpool.Pool with NewBeginner.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

type poolBeginner struct{ pool *pgxpool.Pool }

func (b poolBeginner) Begin(ctx context.Context) (Tx, error) { return b.pool.Begin(ctx) }

// NewBeginner adapts a pgx pool to the Beginner interface.
func NewBeginner(pool *pgxpool.Pool) Beginner { return poolBeginner{pool: pool} }

// CleanupService enforces data retention: terminal jobs and transcript rows
// older than the retention window are removed.
type CleanupService struct {
	DB            Beginner
	RetentionDays int
}

// NewCleanupService creates a cleanup service. retentionDays <= 0 means 90.
func NewCleanupService(db Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{DB: db, RetentionDays: retentionDays}
}

// CleanupOldData removes rows older than the retention window. Only terminal
// jobs are touched; queued and running rows survive regardless of age.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var deletedResearch int64
	err = tx.QueryRow(ctx, `
		WITH gone AS (
			DELETE FROM research_jobs
			WHERE status IN ('completed','failed') AND updated_at < $1
			RETURNING id
		) SELECT count(*) FROM gone
	`, cutoff).Scan(&deletedResearch)
	if err != nil {
		slog.Debug("no research jobs to delete", slog.Any("error", err))
	}

	var deletedPdf int64
	err = tx.QueryRow(ctx, `
		WITH gone AS (
			DELETE FROM pdf_jobs
			WHERE status IN ('completed','failed') AND updated_at < $1
			RETURNING id
		) SELECT count(*) FROM gone
	`, cutoff).Scan(&deletedPdf)
	if err != nil {
		slog.Debug("no pdf jobs to delete", slog.Any("error", err))
	}

	var deletedMessages int64
	err = tx.QueryRow(ctx, `
		WITH gone AS (
			DELETE FROM session_messages
			WHERE created_at < $1
			RETURNING id
		) SELECT count(*) FROM gone
	`, cutoff).Scan(&deletedMessages)
	if err != nil {
		slog.Debug("no session messages to delete", slog.Any("error", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=cleanup.commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_research_jobs", deletedResearch),
		slog.Int64("deleted_pdf_jobs", deletedPdf),
		slog.Int64("deleted_messages", deletedMessages),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs CleanupOldData once, then on every tick until ctx ends.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
