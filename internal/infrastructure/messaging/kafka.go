package messaging

import (
	"context"
	"fmt"
	"sort"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaWriter is the subset of *kafka.Writer the forwarder uses
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder writes every event to one topic, keyed by aggregate ID so
// a product's or order's events stay ordered within a partition
type KafkaForwarder struct {
	writer     KafkaWriter
	serializer Serializer
	logger     *zap.Logger
}

// NewKafkaForwarder creates a forwarder backed by a kafka.Writer
func NewKafkaForwarder(brokers []string, topic string, serializer Serializer, logger *zap.Logger) *KafkaForwarder {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return NewKafkaForwarderWithWriter(w, serializer, logger)
}

// NewKafkaForwarderWithWriter wraps an existing writer
func NewKafkaForwarderWithWriter(writer KafkaWriter, serializer Serializer, logger *zap.Logger) *KafkaForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaForwarder{
		writer:     writer,
		serializer: serializer,
		logger:     logger.With(zap.String("forwarder", "kafka")),
	}
}

// Name identifies the forwarder in idempotency keys
func (f *KafkaForwarder) Name() string { return "kafka" }

// EventTypes subscribes to every event
func (f *KafkaForwarder) EventTypes() []string { return nil }

// Handle writes the event
func (f *KafkaForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	body, err := f.serializer.Serialize(event)
	if err != nil {
		return err
	}

	headers := envelopeHeaders(event)
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msg := kafka.Message{
		Key:   []byte(event.AggregateID().String()),
		Value: body,
		Time:  event.OccurredAt(),
	}
	for _, k := range keys {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(headers[k])})
	}

	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write %s to kafka: %w", event.EventType(), err)
	}
	f.logger.Debug("Event forwarded",
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
	)
	return nil
}

// Close flushes and closes the writer
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

var _ Forwarder = (*KafkaForwarder)(nil)
