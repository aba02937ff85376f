package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mtuci/autonotes-backend/pkg/config"
	"github.com/mtuci/autonotes-backend/pkg/logger"
)

// Publisher is the broker surface the outbox publisher depends on.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Client wraps one AMQP connection and channel. Channel access is serialized;
// amqp091 channels are not safe for concurrent publishes.
type Client struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.AMQPConfig
	logg    *logger.Logger
}

func New(ctx context.Context, cfg config.AMQPConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp broker: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	client := &Client{
		conn:    conn,
		channel: channel,
		cfg:     cfg,
		logg:    logg,
	}

	if err := client.declareTopology(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "amqp client initialized")
	}

	return client, nil
}

// declareTopology sets up the exchange, working queues and their dead-letter
// queues. Declarations are idempotent; every binary declares on startup so
// ordering between producer and consumer deployments does not matter.
func (c *Client) declareTopology() error {
	if err := c.channel.ExchangeDeclare(
		c.cfg.Exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declaring exchange %s: %w", c.cfg.Exchange, err)
	}

	queues := []struct {
		name       string
		routingKey string
		dlq        string
		dlqKey     string
	}{
		{c.cfg.ProcessQueue, c.cfg.ProcessRoutingKey, c.cfg.ProcessDLQ, c.cfg.ProcessDLQKey},
		{c.cfg.ResultsQueue, c.cfg.ResultsRoutingKey, c.cfg.ResultsDLQ, c.cfg.ResultsDLQKey},
	}

	for _, q := range queues {
		if _, err := c.channel.QueueDeclare(q.dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declaring queue %s: %w", q.dlq, err)
		}
		if err := c.channel.QueueBind(q.dlq, q.dlqKey, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("binding queue %s: %w", q.dlq, err)
		}

		args := amqp.Table{
			"x-dead-letter-exchange":    c.cfg.Exchange,
			"x-dead-letter-routing-key": q.dlqKey,
		}
		if _, err := c.channel.QueueDeclare(q.name, true, false, false, false, args); err != nil {
			return fmt.Errorf("declaring queue %s: %w", q.name, err)
		}
		if err := c.channel.QueueBind(q.name, q.routingKey, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("binding queue %s: %w", q.name, err)
		}
	}

	return nil
}

// Publish sends a persistent JSON message to the topic exchange.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return errors.New("amqp channel is closed")
	}

	return c.channel.PublishWithContext(ctx,
		c.cfg.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume opens a delivery stream on the named queue with manual acks.
func (c *Client) Consume(queue string) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return nil, errors.New("amqp channel is closed")
	}

	if err := c.channel.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("setting channel qos: %w", err)
	}

	deliveries, err := c.channel.Consume(
		queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consuming from %s: %w", queue, err)
	}
	return deliveries, nil
}

func (c *Client) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("amqp connection is closed")
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, err)
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		c.conn = nil
	}
	return errors.Join(errs...)
}
