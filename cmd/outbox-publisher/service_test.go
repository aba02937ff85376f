package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/db/models"
	"github.com/mtuci/autonotes-backend/pkg/enums"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOutboxRepo struct {
	events  []models.OutboxEvent
	deleted []uuid.UUID
}

func (f *fakeOutboxRepo) FetchBatchTx(_ *gorm.DB, limit int) ([]models.OutboxEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeOutboxRepo) DeleteBatchTx(_ *gorm.DB, ids []uuid.UUID) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

type fakeBroker struct {
	published []string
	failAfter int // fail every publish once this many succeeded
	err       error
}

func (f *fakeBroker) Publish(_ context.Context, routingKey string, _ []byte) error {
	if f.err != nil && len(f.published) >= f.failAfter {
		return f.err
	}
	f.published = append(f.published, routingKey)
	return nil
}

func event(eventType enums.OutboxEventType, payload string, createdAt time.Time) models.OutboxEvent {
	return models.OutboxEvent{
		ID:          uuid.New(),
		AggregateID: uuid.New(),
		EventType:   eventType,
		Payload:     json.RawMessage(payload),
		CreatedAt:   createdAt,
	}
}

func newPublisher(t *testing.T, repo *fakeOutboxRepo, broker *fakeBroker) *PublisherService {
	t.Helper()
	svc, err := NewPublisherService(PublisherParams{
		Tx:     fakeTxRunner{},
		Repo:   repo,
		Broker: broker,
		Config: config.OutboxConfig{BatchSize: 50, PollIntervalMS: 10},
		AMQP:   config.AMQPConfig{ProcessRoutingKey: "notes.created"},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestProcessBatchPublishesAndDeletes(t *testing.T) {
	now := time.Now()
	repo := &fakeOutboxRepo{events: []models.OutboxEvent{
		event(enums.EventNoteCreated, `{"noteId":"a"}`, now),
		event(enums.EventNoteCreated, `{"noteId":"b"}`, now.Add(time.Second)),
	}}
	broker := &fakeBroker{}

	svc := newPublisher(t, repo, broker)
	published, full, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if published != 2 {
		t.Errorf("expected 2 published, got %d", published)
	}
	if full {
		t.Error("partial batch reported as full")
	}
	if len(broker.published) != 2 || broker.published[0] != "notes.created" {
		t.Errorf("unexpected publishes: %v", broker.published)
	}
	if len(repo.deleted) != 2 {
		t.Errorf("expected both rows deleted, got %d", len(repo.deleted))
	}
}

func TestProcessBatchDeletesPoisonRows(t *testing.T) {
	now := time.Now()
	poisonType := event("UNKNOWN_TYPE", `{}`, now)
	poisonPayload := event(enums.EventNoteCreated, `{broken`, now.Add(time.Second))
	good := event(enums.EventNoteCreated, `{"noteId":"c"}`, now.Add(2*time.Second))

	repo := &fakeOutboxRepo{events: []models.OutboxEvent{poisonType, poisonPayload, good}}
	broker := &fakeBroker{}

	svc := newPublisher(t, repo, broker)
	published, _, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if published != 1 {
		t.Errorf("expected 1 published, got %d", published)
	}
	// poison rows are deleted alongside the published one
	if len(repo.deleted) != 3 {
		t.Errorf("expected 3 rows deleted, got %d", len(repo.deleted))
	}
}

func TestProcessBatchLogsPoisonAsError(t *testing.T) {
	repo := &fakeOutboxRepo{events: []models.OutboxEvent{event("UNKNOWN_TYPE", `{}`, time.Now())}}

	var logs bytes.Buffer
	svc, err := NewPublisherService(PublisherParams{
		Tx:     fakeTxRunner{},
		Repo:   repo,
		Broker: &fakeBroker{},
		Config: config.OutboxConfig{BatchSize: 50, PollIntervalMS: 10},
		AMQP:   config.AMQPConfig{ProcessRoutingKey: "notes.created"},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: &logs}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(logs.String(), `"level":"error"`) {
		t.Errorf("expected poison delete logged at error level, got %s", logs.String())
	}
}

func TestProcessBatchHaltsOnBrokerFailure(t *testing.T) {
	now := time.Now()
	first := event(enums.EventNoteCreated, `{"noteId":"a"}`, now)
	second := event(enums.EventNoteCreated, `{"noteId":"b"}`, now.Add(time.Second))
	third := event(enums.EventNoteCreated, `{"noteId":"c"}`, now.Add(2*time.Second))

	repo := &fakeOutboxRepo{events: []models.OutboxEvent{first, second, third}}
	broker := &fakeBroker{failAfter: 1, err: errors.New("broker down")}

	svc := newPublisher(t, repo, broker)
	published, _, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("halting is not a batch error: %v", err)
	}
	if published != 1 {
		t.Errorf("expected 1 published before the halt, got %d", published)
	}
	// only the published row is deleted; the failed one and everything
	// after it stay for the next poll, preserving order
	if len(repo.deleted) != 1 || repo.deleted[0] != first.ID {
		t.Errorf("expected only the first row deleted, got %v", repo.deleted)
	}
}

func TestProcessBatchReportsFullBatch(t *testing.T) {
	now := time.Now()
	events := make([]models.OutboxEvent, 50)
	for i := range events {
		events[i] = event(enums.EventNoteCreated, `{"noteId":"x"}`, now.Add(time.Duration(i)*time.Millisecond))
	}
	repo := &fakeOutboxRepo{events: events}

	svc := newPublisher(t, repo, &fakeBroker{})
	_, full, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !full {
		t.Error("expected a full batch to trigger an immediate re-poll")
	}
}
