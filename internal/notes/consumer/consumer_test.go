package consumer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mtuci/autonotes-backend/internal/notes"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

type fakeApplier struct {
	applied []*notes.NoteResultEvent
	err     error
}

func (f *fakeApplier) ApplyResult(_ context.Context, event *notes.NoteResultEvent) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, event)
	return nil
}

type fakeAcknowledger struct {
	acked      bool
	nacked     bool
	requeueArg bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked = true
	f.requeueArg = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(uint64, bool) error {
	return nil
}

type fakeSource struct{}

func (fakeSource) Consume(string) (<-chan amqp.Delivery, error) {
	return nil, nil
}

func newTestConsumer(t *testing.T, applier *fakeApplier) *Consumer {
	t.Helper()
	c, err := New(Params{
		Source:  fakeSource{},
		Service: applier,
		Queue:   "notes.results.queue",
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func delivery(body []byte, redelivered bool) (amqp.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}, ack
}

func TestHandleAcksAppliedResult(t *testing.T) {
	applier := &fakeApplier{}
	c := newTestConsumer(t, applier)

	body := []byte(`{"noteId": "` + uuid.NewString() + `", "status": "COMPLETED", "recognizedText": "t"}`)
	d, ack := delivery(body, false)

	c.handle(context.Background(), d)

	if !ack.acked {
		t.Error("expected delivery to be acked")
	}
	if len(applier.applied) != 1 {
		t.Errorf("expected 1 applied result, got %d", len(applier.applied))
	}
}

func TestHandleDeadLettersPoisonMessage(t *testing.T) {
	applier := &fakeApplier{}
	c := newTestConsumer(t, applier)

	d, ack := delivery([]byte(`{broken`), false)

	c.handle(context.Background(), d)

	if !ack.nacked || ack.requeueArg {
		t.Errorf("expected nack without requeue, got nacked=%v requeue=%v", ack.nacked, ack.requeueArg)
	}
	if len(applier.applied) != 0 {
		t.Error("poison message must not reach the service")
	}
}

func TestHandleRequeuesFirstFailure(t *testing.T) {
	applier := &fakeApplier{err: errors.New("db down")}
	c := newTestConsumer(t, applier)

	body := []byte(`{"noteId": "` + uuid.NewString() + `", "status": "FAILED"}`)
	d, ack := delivery(body, false)

	c.handle(context.Background(), d)

	if !ack.nacked || !ack.requeueArg {
		t.Errorf("expected nack with requeue on first failure, got nacked=%v requeue=%v", ack.nacked, ack.requeueArg)
	}
}

func TestHandleDeadLettersRedeliveredFailure(t *testing.T) {
	applier := &fakeApplier{err: errors.New("db down")}
	c := newTestConsumer(t, applier)

	body := []byte(`{"noteId": "` + uuid.NewString() + `", "status": "FAILED"}`)
	d, ack := delivery(body, true)

	c.handle(context.Background(), d)

	if !ack.nacked || ack.requeueArg {
		t.Errorf("expected nack without requeue on redelivery, got nacked=%v requeue=%v", ack.nacked, ack.requeueArg)
	}
}
