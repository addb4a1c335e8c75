package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config describes where job events go.
type Config struct {
	URL        string
	Exchange   string
	Queue      string
	RoutingKey string
	Retries    int
	RetryDelay time.Duration
	Heartbeat  time.Duration
}

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON messages to a durable direct exchange.
type AMQPPublisher struct {
	cfg    Config
	ch     channel
	conn   io.Closer
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// Dial connects to the broker and declares the exchange, queue and binding.
func Dial(cfg Config, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	p, err := newAMQPPublisher(cfg, ch, conn, logger)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return p, nil
}

func newAMQPPublisher(cfg Config, ch channel, conn io.Closer, logger *slog.Logger) (*AMQPPublisher, error) {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}

	p := &AMQPPublisher{cfg: cfg, ch: ch, conn: conn, logger: logger, sleep: sleepCtx}
	if err := p.setup(); err != nil {
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	logger.Info("rabbitmq publisher ready",
		slog.String("exchange", cfg.Exchange),
		slog.String("queue", cfg.Queue),
		slog.String("routing_key", cfg.RoutingKey),
	)
	return p, nil
}

func (p *AMQPPublisher) setup() error {
	if err := p.ch.ExchangeDeclare(p.cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := p.ch.QueueDeclare(p.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := p.ch.QueueBind(p.cfg.Queue, p.cfg.RoutingKey, p.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishJobRequested publishes ev, retrying with exponential backoff.
func (p *AMQPPublisher) PublishJobRequested(ctx context.Context, ev JobRequested) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.TaskID,
		Timestamp:    time.Now(),
	}

	var lastErr error
	for attempt := 0; attempt <= p.cfg.Retries; attempt++ {
		lastErr = p.ch.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, msg)
		if lastErr == nil {
			p.logger.Debug("job event published",
				slog.String("task_id", ev.TaskID),
				slog.Int("attempt", attempt+1),
			)
			return nil
		}
		if attempt == p.cfg.Retries {
			break
		}

		delay := p.cfg.RetryDelay << attempt
		p.logger.Warn("publish failed, retrying",
			slog.String("task_id", ev.TaskID),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_after", delay),
			slog.Any("error", lastErr),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return fmt.Errorf("publish job event: %w", errors.Join(lastErr, err))
		}
	}
	return fmt.Errorf("publish job event after %d attempts: %w", p.cfg.Retries+1, lastErr)
}

// ErrConnectionClosed is returned by Ping once the broker connection is gone.
var ErrConnectionClosed = errors.New("rabbitmq connection closed")

// Ping reports whether the broker connection is still open.
func (p *AMQPPublisher) Ping(context.Context) error {
	if c, ok := p.conn.(interface{ IsClosed() bool }); ok && c.IsClosed() {
		return ErrConnectionClosed
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	chErr := p.ch.Close()
	var connErr error
	if p.conn != nil {
		connErr = p.conn.Close()
	}
	return errors.Join(chErr, connErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
