package messaging

import (
	"context"
	"fmt"

	"github.com/erp/stockcore/internal/domain/shared"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPChannel is the subset of *amqp.Channel the forwarder uses
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQForwarder publishes to a topic exchange with the event type as
// routing key
type RabbitMQForwarder struct {
	conn       *amqp.Connection
	channel    AMQPChannel
	exchange   string
	serializer Serializer
	logger     *zap.Logger
}

// DialRabbitMQForwarder connects, opens a channel and declares the exchange
func DialRabbitMQForwarder(url, exchange string, serializer Serializer, logger *zap.Logger) (*RabbitMQForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	f := NewRabbitMQForwarderWithChannel(ch, exchange, serializer, logger)
	f.conn = conn
	f.logger.Info("Connected to RabbitMQ", zap.String("exchange", exchange))
	return f, nil
}

// NewRabbitMQForwarderWithChannel wraps an already declared channel
func NewRabbitMQForwarderWithChannel(ch AMQPChannel, exchange string, serializer Serializer, logger *zap.Logger) *RabbitMQForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitMQForwarder{
		channel:    ch,
		exchange:   exchange,
		serializer: serializer,
		logger:     logger.With(zap.String("forwarder", "rabbitmq")),
	}
}

// Name identifies the forwarder in idempotency keys
func (f *RabbitMQForwarder) Name() string { return "rabbitmq" }

// EventTypes subscribes to every event
func (f *RabbitMQForwarder) EventTypes() []string { return nil }

// Handle publishes the event as a persistent message
func (f *RabbitMQForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	body, err := f.serializer.Serialize(event)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	for k, v := range envelopeHeaders(event) {
		headers[k] = v
	}

	err = f.channel.PublishWithContext(ctx,
		f.exchange,
		event.EventType(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID().String(),
			Timestamp:    event.OccurredAt(),
			Type:         event.EventType(),
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	f.logger.Debug("Event forwarded",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)
	return nil
}

// Close closes the channel and connection
func (f *RabbitMQForwarder) Close() error {
	err := f.channel.Close()
	if f.conn != nil {
		if cerr := f.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ Forwarder = (*RabbitMQForwarder)(nil)
