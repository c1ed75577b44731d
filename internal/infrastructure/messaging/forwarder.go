// Package messaging relays committed domain events to an external broker.
// Forwarders are event bus handlers; the outbox processor feeds the bus.
package messaging

import (
	"fmt"
	"io"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Serializer encodes an event body
type Serializer interface {
	Serialize(event shared.DomainEvent) ([]byte, error)
}

// Forwarder is an event handler that owns a broker connection
type Forwarder interface {
	shared.EventHandler
	io.Closer
	Name() string
}

// NewForwarder builds the forwarder selected by cfg.Driver. It returns nil
// when messaging is disabled.
func NewForwarder(cfg config.MessagingConfig, serializer Serializer, logger *zap.Logger) (Forwarder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", config.MessagingDriverNone:
		return nil, nil
	case config.MessagingDriverKafka:
		return NewKafkaForwarder(cfg.Brokers, cfg.Topic, serializer, logger), nil
	case config.MessagingDriverRabbitMQ:
		f, err := DialRabbitMQForwarder(cfg.URL, cfg.Exchange, serializer, logger)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown messaging driver %q", cfg.Driver)
	}
}

// envelopeHeaders are attached to every forwarded message
func envelopeHeaders(event shared.DomainEvent) map[string]string {
	return map[string]string{
		"event_id":       event.EventID().String(),
		"event_type":     event.EventType(),
		"aggregate_type": event.AggregateType(),
		"aggregate_id":   event.AggregateID().String(),
		"tenant_id":      event.TenantID().String(),
	}
}
