package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mtuci/autonotes-backend/internal/notes"
	"github.com/mtuci/autonotes-backend/internal/notes/consumer"
	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db"
	"github.com/mtuci/autonotes-backend/pkg/logger"
	"github.com/mtuci/autonotes-backend/pkg/outbox"
	"github.com/mtuci/autonotes-backend/pkg/rabbitmq"
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
		ServiceName: "worker",
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

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to init gcs client", err)
		os.Exit(1)
	}

	amqpClient, err := rabbitmq.New(ctx, cfg.AMQP, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to broker", err)
		os.Exit(1)
	}
	defer func() { _ = amqpClient.Close() }()

	noteRepo, err := notes.NewRepository(notes.RepositoryParams{Client: dbClient})
	if err != nil {
		logg.Error(ctx, "failed to build note repository", err)
		os.Exit(1)
	}

	outboxSvc, err := outbox.NewService(outbox.ServiceParams{Repo: outbox.NewRepository()})
	if err != nil {
		logg.Error(ctx, "failed to build outbox service", err)
		os.Exit(1)
	}

	noteSvc, err := notes.NewService(notes.ServiceParams{
		Tx:      dbClient,
		Repo:    noteRepo,
		Outbox:  outboxSvc,
		Storage: gcsClient,
		Bucket:  cfg.GCS.BucketName,
		Config:  cfg.Notes,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build note service", err)
		os.Exit(1)
	}

	resultConsumer, err := consumer.New(consumer.Params{
		Source:  amqpClient,
		Service: noteSvc,
		Queue:   cfg.AMQP.ResultsQueue,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build result consumer", err)
		os.Exit(1)
	}

	logg.Info(ctx, "result worker starting")
	if err := resultConsumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "result worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "result worker stopped")
}
