package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// RoutingKey is the routing key queued messages are published with
const RoutingKey = "email.send"

// QueueConfig names the RabbitMQ topology used for queued mail
type QueueConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

// Publisher is the part of *amqp.Channel that QueueSender needs
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueSender hands messages to RabbitMQ; cmd/mailer delivers them.
type QueueSender struct {
	pub      Publisher
	exchange string
}

// NewQueueSender creates a QueueSender publishing to exchange
func NewQueueSender(pub Publisher, exchange string) *QueueSender {
	return &QueueSender{pub: pub, exchange: exchange}
}

// Send publishes msg as a persistent JSON message
func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queued email: %w", err)
	}

	headers := amqp.Table{}
	if requestID, ok := ctx.Value(RequestIDContextKey).(string); ok && requestID != "" {
		headers["X-Request-ID"] = requestID
	}

	err = q.pub.PublishWithContext(ctx, q.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		return TemporaryError{Msg: "failed to publish email: " + err.Error()}
	}
	return nil
}

type requestIDKey struct{}

// RequestIDContextKey is the context key whose string value is copied into
// the X-Request-ID header of queued messages.
var RequestIDContextKey = requestIDKey{}

// DialQueue connects to RabbitMQ, declares the exchange, queue and binding,
// and returns the connection and a channel ready to publish or consume.
func DialQueue(cfg QueueConfig) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declareTopology(ch *amqp.Channel, cfg QueueConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Consumer reads queued messages and delivers them with a Sender.
type Consumer struct {
	cfg    QueueConfig
	sender Sender
	log    zerolog.Logger
}

// NewConsumer creates a Consumer
func NewConsumer(cfg QueueConfig, sender Sender, log zerolog.Logger) *Consumer {
	return &Consumer{
		cfg:    cfg,
		sender: sender,
		log:    log.With().Str("component", "mail_consumer").Logger(),
	}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff
// when the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.log.Error().Err(err).Dur("backoff", backoff).Msg("consumer stopped; reconnecting")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, ch, err := DialQueue(c.cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	deliveries, err := ch.Consume(c.cfg.Queue, "shopfront-mailer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.log.Info().Str("queue", c.cfg.Queue).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle delivers one queued message and settles it: ack on success, drop on
// a permanent failure, requeue otherwise.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Error().Err(err).Msg("dropping undecodable message")
		d.Nack(false, false)
		return
	}

	if requestID, ok := d.Headers["X-Request-ID"].(string); ok {
		ctx = context.WithValue(ctx, RequestIDContextKey, requestID)
	}

	err := c.sender.Send(ctx, msg)
	switch {
	case err == nil:
		d.Ack(false)
	case IsPermanent(err):
		c.log.Error().Err(err).Str("subject", msg.Subject).Msg("dropping undeliverable message")
		d.Nack(false, false)
	default:
		c.log.Warn().Err(err).Str("subject", msg.Subject).Msg("delivery failed; requeueing")
		d.Nack(false, true)
	}
}
