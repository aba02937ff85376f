package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mtuci/autonotes-backend/api/routes"
	"github.com/mtuci/autonotes-backend/internal/notes"
	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db"
	"github.com/mtuci/autonotes-backend/pkg/logger"
	"github.com/mtuci/autonotes-backend/pkg/migrate"
	"github.com/mtuci/autonotes-backend/pkg/outbox"
	"github.com/mtuci/autonotes-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	noteRepo, err := notes.NewRepository(notes.RepositoryParams{Client: dbClient})
	if err != nil {
		logg.Error(ctx, "failed to create note repository", err)
		os.Exit(1)
	}

	outboxSvc, err := outbox.NewService(outbox.ServiceParams{Repo: outbox.NewRepository()})
	if err != nil {
		logg.Error(ctx, "failed to create outbox service", err)
		os.Exit(1)
	}

	noteService, err := notes.NewService(notes.ServiceParams{
		Tx:      dbClient,
		Repo:    noteRepo,
		Outbox:  outboxSvc,
		Storage: gcsClient,
		Bucket:  cfg.GCS.BucketName,
		Config:  cfg.Notes,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create note service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, gcsClient, noteService),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(startCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(startCtx, "api server stopped")
}
