package main

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/enums"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

const (
	defaultBatchSize = 50
	minBackoff       = time.Second
	maxBackoff       = 30 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchBatchTx(tx *gorm.DB, limit int) ([]models.OutboxEvent, error)
	DeleteBatchTx(tx *gorm.DB, ids []uuid.UUID) error
}

type broker interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// PublisherService drains the outbox table into the broker. One batch is one
// transaction: rows stay locked while their messages are handed off, and a
// single delete statement removes everything published (plus any poison rows)
// before commit.
type PublisherService struct {
	tx           txRunner
	repo         outboxRepository
	broker       broker
	batchSize    int
	pollInterval time.Duration
	routingKeys  map[enums.OutboxEventType]string
	logg         *logger.Logger
}

type PublisherParams struct {
	Tx     txRunner
	Repo   outboxRepository
	Broker broker
	Config config.OutboxConfig
	AMQP   config.AMQPConfig
	Logger *logger.Logger
}

func NewPublisherService(params PublisherParams) (*PublisherService, error) {
	if params.Tx == nil {
		return nil, errors.New("tx runner is required")
	}
	if params.Repo == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Broker == nil {
		return nil, errors.New("broker is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	batchSize := params.Config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	pollInterval := time.Duration(params.Config.PollIntervalMS) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &PublisherService{
		tx:           params.Tx,
		repo:         params.Repo,
		broker:       params.Broker,
		batchSize:    batchSize,
		pollInterval: pollInterval,
		routingKeys: map[enums.OutboxEventType]string{
			enums.EventNoteCreated: params.AMQP.ProcessRoutingKey,
		},
		logg: params.Logger,
	}, nil
}

// Run polls until ctx is cancelled. A full batch triggers an immediate
// re-poll; errors back off exponentially with jitter.
func (s *PublisherService) Run(ctx context.Context) error {
	backoff := minBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		published, full, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
			if !s.sleep(ctx, withJitter(backoff)) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		if published > 0 {
			s.logg.Info(s.logg.WithField(ctx, "count", published), "published outbox events")
		}
		if full {
			continue
		}
		if !s.sleep(ctx, s.pollInterval) {
			return ctx.Err()
		}
	}
}

// processBatch publishes one locked batch. Broker failure halts the batch so
// later events for the same aggregate never overtake the failed one; the rows
// already handed off are still deleted on commit.
func (s *PublisherService) processBatch(ctx context.Context) (published int, full bool, err error) {
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchBatchTx(tx, s.batchSize)
		if err != nil {
			return err
		}
		full = len(events) == s.batchSize

		done := make([]uuid.UUID, 0, len(events))
		halted := false
		for _, event := range events {
			routingKey, ok := s.routingKeys[event.EventType]
			if !ok || !json.Valid(event.Payload) {
				reason := errors.New("no routing key for event type " + string(event.EventType))
				if ok {
					reason = errors.New("payload is not valid json")
				}
				ctx := s.logg.WithField(ctx, "event_id", event.ID.String())
				s.logg.Error(ctx, "deleting poison outbox event", reason)
				done = append(done, event.ID)
				continue
			}

			if err := s.broker.Publish(ctx, routingKey, event.Payload); err != nil {
				s.logg.Error(ctx, "broker publish failed, halting batch", err)
				halted = true
				break
			}
			done = append(done, event.ID)
			published++
		}

		// a halted batch waits out the poll interval instead of
		// hammering a broker that just failed
		if halted {
			full = false
		}

		return s.repo.DeleteBatchTx(tx, done)
	})
	if err != nil {
		return 0, false, err
	}
	return published, full, nil
}

func (s *PublisherService) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}
