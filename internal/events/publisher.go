package events

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/rabbitmq/amqp091-go"
)

// Publisher sends extraction notifications.
type Publisher interface {
	PublishStatementExtracted(ctx context.Context, msg *StatementExtracted) error
	Close() error
}

// NoopPublisher drops every message. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishStatementExtracted(context.Context, *StatementExtracted) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPConfig configures the broker connection.
type AMQPConfig struct {
	URL            string
	Exchange       string
	Queue          string
	DialAttempts   uint
	DialDelay      time.Duration
	PublishTimeout time.Duration
}

// AMQPPublisher publishes to a direct exchange, routing by queue name.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	channel  channel
	exchange string
	queue    string
	timeout  time.Duration
	logger   *log.Logger
}

// NewAMQPPublisher dials the broker, retrying with backoff, and declares the
// exchange, queue and binding.
func NewAMQPPublisher(ctx context.Context, cfg AMQPConfig, logger *log.Logger) (*AMQPPublisher, error) {
	attempts := cfg.DialAttempts
	if attempts == 0 {
		attempts = 5
	}
	delay := cfg.DialDelay
	if delay == 0 {
		delay = time.Second
	}

	var conn *amqp091.Connection
	err := retry.Do(
		func() error {
			c, err := amqp091.Dial(cfg.URL)
			if err != nil {
				return fmt.Errorf("dial AMQP: %w", err)
			}
			conn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying AMQP connection", "attempt", n+1, "max_attempts", attempts, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p := newAMQPPublisher(ch, cfg, logger)
	p.conn = conn
	if err := p.setup(); err != nil {
		p.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}
	return p, nil
}

func newAMQPPublisher(ch channel, cfg AMQPConfig, logger *log.Logger) *AMQPPublisher {
	timeout := cfg.PublishTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &AMQPPublisher{
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		timeout:  timeout,
		logger:   logger,
	}
}

func (p *AMQPPublisher) setup() error {
	if err := p.channel.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := p.channel.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := p.channel.QueueBind(p.queue, p.queue, p.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishStatementExtracted sends msg as a persistent JSON message.
func (p *AMQPPublisher) PublishStatementExtracted(ctx context.Context, msg *StatementExtracted) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.ExtractionID,
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	p.logger.Debug("Published statement extracted message",
		"extraction_id", msg.ExtractionID,
		"exchange", p.exchange,
		"queue", p.queue)
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
