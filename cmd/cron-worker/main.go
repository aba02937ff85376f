package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtuci/autonotes-backend/internal/cron"
	"github.com/mtuci/autonotes-backend/internal/notes"
	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db"
	"github.com/mtuci/autonotes-backend/pkg/logger"
	"github.com/mtuci/autonotes-backend/pkg/metrics"
	"github.com/mtuci/autonotes-backend/pkg/redis"
	"github.com/mtuci/autonotes-backend/pkg/storage/gcs"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer func() { _ = dbClient.Close() }()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to redis", err)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to init gcs client", err)
		os.Exit(1)
	}

	noteRepo, err := notes.NewRepository(notes.RepositoryParams{Client: dbClient})
	if err != nil {
		logg.Error(ctx, "failed to build note repository", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(cron.RedisLockParams{
		Store:  redisClient,
		Owner:  uuid.NewString(),
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build job lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	if err := registerJobs(registry, cfg, dbClient, noteRepo, gcsClient, logg); err != nil {
		logg.Error(ctx, "failed to register jobs", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	jobMetrics := metrics.NewCronJobMetrics(promRegistry)

	svc, err := cron.NewService(cron.ServiceParams{
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build cron service", err)
		os.Exit(1)
	}

	go serveMetrics(ctx, cfg.App.Port, promRegistry, logg)

	logg.Info(ctx, "cron worker starting")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker stopped")
}

func registerJobs(
	registry *cron.Registry,
	cfg *config.Config,
	dbClient *db.Client,
	noteRepo *notes.Repository,
	gcsClient *gcs.Client,
	logg *logger.Logger,
) error {
	stuckJob, err := cron.NewStuckNoteJob(cron.StuckNoteJobParams{
		Tx:      dbClient,
		Repo:    noteRepo,
		Timeout: cfg.Notes.ProcessingTimeout,
		Logger:  logg,
	})
	if err != nil {
		return err
	}
	if err := registry.Register(stuckJob, cfg.Cron.StuckSweepInterval); err != nil {
		return err
	}

	purgeJob, err := cron.NewPurgeJob(cron.PurgeJobParams{
		Tx:        dbClient,
		Repo:      noteRepo,
		Storage:   gcsClient,
		Retention: cfg.Notes.SoftDeleteRetention,
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	if err := registry.Register(purgeJob, cfg.Cron.PurgeSweepInterval); err != nil {
		return err
	}

	gcJob, err := cron.NewStorageGCJob(cron.StorageGCJobParams{
		Storage:   gcsClient,
		Repo:      noteRepo,
		Retention: cfg.Notes.StorageGCRetention,
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	return registry.Register(gcJob, cfg.Cron.StorageGCSweepInterval)
}

func serveMetrics(ctx context.Context, port string, registry *prometheus.Registry, logg *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped", err)
	}
}
