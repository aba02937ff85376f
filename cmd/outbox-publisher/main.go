package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db"
	"github.com/mtuci/autonotes-backend/pkg/logger"
	"github.com/mtuci/autonotes-backend/pkg/outbox"
	"github.com/mtuci/autonotes-backend/pkg/rabbitmq"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	amqpClient, err := rabbitmq.New(ctx, cfg.AMQP, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to broker", err)
		os.Exit(1)
	}
	defer func() { _ = amqpClient.Close() }()

	svc, err := NewPublisherService(PublisherParams{
		Tx:     dbClient,
		Repo:   outbox.NewRepository(),
		Broker: amqpClient,
		Config: cfg.Outbox,
		AMQP:   cfg.AMQP,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to build publisher", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher starting")
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher stopped")
}
