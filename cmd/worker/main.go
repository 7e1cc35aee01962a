// Command worker runs the research and PDF job consumers plus the
// stale-lease reclaimer. It claims work from Postgres, so any number of
// worker replicas can run side by side.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/browser"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/observability"
	pdfsvc "github.com/fairyhunter13/ai-deep-researcher/internal/adapter/pdf"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/queue/pgqueue"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-deep-researcher/internal/adapter/search/brave"
	qdrantcli "github.com/fairyhunter13/ai-deep-researcher/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/ai-deep-researcher/internal/app"
	"github.com/fairyhunter13/ai-deep-researcher/internal/config"
	"github.com/fairyhunter13/ai-deep-researcher/internal/domain"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-deep-researcher/internal/service/repair"
)

func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := workerID()
	slog.Info("starting worker", slog.String("env", cfg.AppEnv), slog.String("worker_id", id))

	if err := postgres.Migrate(ctx, cfg.DBURL); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewResearchJobRepo(pool)
	pdfJobRepo := postgres.NewPdfJobRepo(pool)
	sessionRepo := postgres.NewSessionRepo(pool)

	// Shared provider rate limiter over Redis. A nil client fails open.
	var rdb *redis.Client
	if opts, rerr := redis.ParseURL(cfg.RedisURL); rerr != nil {
		slog.Warn("redis url parse failed, provider limiter disabled", slog.Any("error", rerr))
	} else {
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
	}
	bucket := ratelimiter.NewBucketConfigFromPerMinute(cfg.ProviderRatePerMin)
	if cfg.ProviderRateBurst > 0 {
		bucket.Capacity = int64(cfg.ProviderRateBurst)
	}
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		"provider:openrouter": bucket,
		"provider:groq":       bucket,
		"provider:openai":     bucket,
	})

	primary := openrouter.NewOpenRouter(cfg, limiter)
	var secondary domain.AIClient
	if cfg.GroqAPIKey != "" {
		secondary = openrouter.NewGroq(cfg, limiter)
	}
	embedder := domain.AIClient(primary)
	if cfg.OpenAIAPIKey != "" {
		embedder = openrouter.NewOpenAI(cfg, limiter)
	}

	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	app.EnsureResearchCollection(ctx, cfg, qcli)
	vectorStore := qdrantcli.NewStore(qcli, embedder, cfg.QdrantCollection)

	pdfService := pdfsvc.New(primary, cfg.PdfExtractModel, pdfJobRepo)

	mgr := browser.NewManager(cfg.BrowserBin, cfg.BrowserHeadless)
	if err := mgr.Start(ctx); err != nil {
		slog.Error("browser start failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer mgr.Stop()
	scraper := browser.NewScraper(mgr, pdfService, cfg.ScrapeNavTimeout, cfg.ScrapeMinChars)

	runner := &pgqueue.PipelineRunner{
		Cfg:       cfg,
		Primary:   primary,
		Secondary: secondary,
		Vector:    vectorStore,
		Scraper:   scraper,
		PDF:       pdfService,
		Search:    brave.New(cfg),
		PdfJobs:   pdfJobRepo,
		Repair: repair.New(primary, cfg.RepairModel, repair.Policy{
			MaxRetries:       cfg.RepairMaxRetries,
			AttemptTimeout:   cfg.RepairAttemptTimeout,
			EquationMaxChars: cfg.EquationMaxChars,
		}),
		Counter: tokencount.NewCounter(),
	}

	researchWorker := &pgqueue.ResearchWorker{
		Jobs:         jobRepo,
		Sessions:     sessionRepo,
		Exec:         runner,
		WorkerID:     id,
		BatchSize:    cfg.ResearchBatchSize,
		PollInterval: cfg.ResearchPollInterval,
		Lease:        cfg.JobLeaseDuration,
		Backoff:      cfg.ResearchBackoffPolicy(),
	}
	pdfWorker := &pgqueue.PdfWorker{
		Jobs:         pdfJobRepo,
		PDF:          pdfService,
		Vector:       vectorStore,
		WorkerID:     id,
		BatchSize:    cfg.PdfBatchSize,
		PollInterval: cfg.PdfPollInterval,
		Lease:        cfg.JobLeaseDuration,
		Backoff:      cfg.PdfBackoffPolicy(),
	}
	reclaimer := &app.LeaseReclaimer{
		Jobs:     jobRepo,
		Sessions: sessionRepo,
		Backoff:  cfg.ResearchBackoffPolicy(),
		Interval: cfg.LeaseReclaimInterval,
	}

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return researchWorker.Run(gctx) })
	g.Go(func() error { return pdfWorker.Run(gctx) })
	g.Go(func() error { reclaimer.Run(gctx); return nil })
	g.Go(func() error {
		err := metricsSrv.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	slog.Info("worker started, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		slog.Error("worker stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}
