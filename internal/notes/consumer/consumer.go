package consumer

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mtuci/autonotes-backend/internal/notes"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

type resultApplier interface {
	ApplyResult(ctx context.Context, event *notes.NoteResultEvent) error
}

type deliverySource interface {
	Consume(queue string) (<-chan amqp.Delivery, error)
}

// Consumer drains the results queue and applies worker verdicts. Delivery is
// at-least-once; idempotency lives in the service's status guard, so a
// redelivered result is acked without a second write.
type Consumer struct {
	source  deliverySource
	service resultApplier
	queue   string
	logg    *logger.Logger
}

type Params struct {
	Source  deliverySource
	Service resultApplier
	Queue   string
	Logger  *logger.Logger
}

func New(params Params) (*Consumer, error) {
	if params.Source == nil {
		return nil, errors.New("delivery source is required")
	}
	if params.Service == nil {
		return nil, errors.New("note service is required")
	}
	if params.Queue == "" {
		return nil, errors.New("queue name is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		source:  params.Source,
		service: params.Service,
		queue:   params.Queue,
		logg:    params.Logger,
	}, nil
}

// Run blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.source.Consume(c.queue)
	if err != nil {
		return err
	}

	c.logg.Info(c.logg.WithField(ctx, "queue", c.queue), "result consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	event, err := notes.DecodeResultEvent(d.Body)
	if err != nil {
		// poison message, retrying cannot help
		c.logg.Warn(ctx, "dropping undecodable result message: "+err.Error())
		c.reject(ctx, d, false)
		return
	}

	ctx = c.logg.WithNoteID(ctx, event.NoteID.String())

	if err := c.service.ApplyResult(ctx, event); err != nil {
		// requeue once, dead-letter on the second failure
		c.logg.Error(ctx, "failed to apply result", err)
		c.reject(ctx, d, !d.Redelivered)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logg.Error(ctx, "failed to ack result message", err)
	}
}

func (c *Consumer) reject(ctx context.Context, d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		c.logg.Error(ctx, "failed to nack result message", err)
	}
}
