// Command importer runs the rainfall import workers, the stale-job reaper,
// the optional gauge discovery consumer and the operational HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/rainfall-import-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/rainfall-import-service/internal/adapter/kafka"
	"github.com/couchcryptid/rainfall-import-service/internal/config"
	"github.com/couchcryptid/rainfall-import-service/internal/download"
	"github.com/couchcryptid/rainfall-import-service/internal/observability"
	"github.com/couchcryptid/rainfall-import-service/internal/queue"
	"github.com/couchcryptid/rainfall-import-service/internal/store"
	"github.com/couchcryptid/rainfall-import-service/internal/trigger"
	"github.com/couchcryptid/rainfall-import-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	jobs := queue.NewPostgres(db, clock, queue.BackoffPolicy{Base: cfg.RetryBaseDelay, Max: cfg.RetryMaxDelay})
	repo := store.NewPostgres(db)
	if err := jobs.Migrate(ctx); err != nil {
		logger.Error("failed to migrate job queue", "error", err)
		os.Exit(1)
	}
	if err := repo.Migrate(ctx); err != nil {
		logger.Error("failed to migrate repository", "error", err)
		os.Exit(1)
	}

	urls := download.NewURLs(cfg.DocumentBaseURL, cfg.WorkbookPath, cfg.PDFPath, cfg.MetadataPath)
	client := download.NewClient(cfg.DownloadTimeout, metrics, logger)
	fetcher := download.NewCachedFetcher(client, cfg.DownloadCacheSize, urls.Shared, metrics)

	var archive worker.Archive
	if cfg.ArchiveBucket != "" {
		s3Archive, err := download.NewS3Archive(ctx, cfg.ArchiveBucket, logger)
		if err != nil {
			logger.Error("failed to create document archive", "error", err)
			os.Exit(1)
		}
		archive = s3Archive
		logger.Info("document archive enabled", "bucket", cfg.ArchiveBucket)
	}

	var (
		publisher worker.Publisher
		writer    *kafkaadapter.Writer
		reader    *kafkaadapter.Reader
	)
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, metrics, logger)
		reader = kafkaadapter.NewReader(cfg, logger)
		publisher = writer
		logger.Info("kafka enabled", "brokers", cfg.KafkaBrokers,
			"discovery_topic", cfg.KafkaDiscoveryTopic, "events_topic", cfg.KafkaEventsTopic)
	} else {
		logger.Info("kafka disabled; jobs are enqueued with cmd/jobs only")
	}

	importer := worker.NewImporter(urls, worker.PlanConfig{
		FirstWaterYear:           cfg.BackfillFirstWaterYear,
		SpreadsheetLastWaterYear: cfg.SpreadsheetLastWaterYear,
		PDFFirstMonth:            cfg.PDFFirstMonth,
	}, fetcher, download.PDFTextExtractor{}, repo, archive, clock, metrics, logger)

	workers := make([]*worker.Worker, cfg.WorkerCount)
	for i := range workers {
		workers[i] = worker.New(i+1, jobs, importer, publisher, clock, cfg.PollInterval, logger, metrics)
	}
	pool := worker.NewPool(workers...)
	reaper := worker.NewReaper(jobs, cfg.StaleJobAfter, cfg.ReapInterval, clock, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Readiness{
		{Name: "database", Checker: jobs},
		{Name: "workers", Checker: pool},
	}, jobs, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return reaper.Run(gctx) })
	if reader != nil {
		discovery := trigger.NewDiscovery(reader, jobs, logger, metrics)
		g.Go(func() error { return discovery.Run(gctx) })
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := g.Wait(); err != nil {
		logger.Error("worker error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
