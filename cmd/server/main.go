// Command server starts the deep-research HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpserver "github.com/fairyhunter13/ai-deep-researcher/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/repo/postgres"
	qdrantcli "github.com/fairyhunter13/ai-deep-researcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-deep-researcher/internal/app"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
	"github.com/fairyhunter13/ai-deep-researcher/internal/usecase"
)

// redisAdapter narrows *redis.Client to the readiness interface.
type redisAdapter struct{ *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult {
	return r.Client.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewResearchJobRepo(pool)
	sessionRepo := postgres.NewSessionRepo(pool)

	// Retention cleanup runs in the API process; the worker stays busy with jobs.
	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(postgres.NewBeginner(pool), cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	var rdb *redis.Client
	if opts, rerr := redis.ParseURL(cfg.RedisURL); rerr != nil {
		slog.Warn("redis url parse failed", slog.Any("error", rerr))
	} else {
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}

	var qcli *qdrantcli.Client
	if cfg.QdrantURL != "" {
		qcli = qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	}
	app.EnsureResearchCollection(ctx, cfg, qcli)

	var redisCheck app.RedisClient
	if rdb != nil {
		redisCheck = redisAdapter{rdb}
	}
	dbCheck, rdCheck, qdrantCheck := app.BuildReadinessChecks(cfg, pool, redisCheck)

	srv := &httpserver.Server{
		Cfg:         cfg,
		Research:    usecase.NewResearchService(jobRepo, sessionRepo),
		Session:     usecase.NewSessionService(jobRepo, sessionRepo),
		DBCheck:     dbCheck,
		RedisCheck:  rdCheck,
		QdrantCheck: qdrantCheck,
	}
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
