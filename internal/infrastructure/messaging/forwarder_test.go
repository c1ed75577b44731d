package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type lotReceived struct {
	shared.BaseDomainEvent
	Quantity string `json:"quantity"`
}

func newLotReceived() *lotReceived {
	return &lotReceived{
		BaseDomainEvent: shared.NewBaseDomainEvent("inventory.stock.received", "Product", uuid.New(), uuid.New()),
		Quantity:        "10",
	}
}

type jsonSerializer struct{}

func (jsonSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

type mockKafkaWriter struct {
	mock.Mock
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockKafkaWriter) Close() error {
	return m.Called().Error(0)
}

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestKafkaForwarder_Handle(t *testing.T) {
	writer := new(mockKafkaWriter)
	f := NewKafkaForwarderWithWriter(writer, jsonSerializer{}, nil)
	evt := newLotReceived()

	writer.On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
		if len(msgs) != 1 {
			return false
		}
		msg := msgs[0]
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		return string(msg.Key) == evt.AggregateID().String() &&
			headers["event_id"] == evt.EventID().String() &&
			headers["event_type"] == "inventory.stock.received" &&
			headers["tenant_id"] == evt.TenantID().String()
	})).Return(nil).Once()

	require.NoError(t, f.Handle(context.Background(), evt))
	writer.AssertExpectations(t)
	assert.Equal(t, "kafka", f.Name())
	assert.Empty(t, f.EventTypes())
}

func TestKafkaForwarder_WriteError(t *testing.T) {
	writer := new(mockKafkaWriter)
	f := NewKafkaForwarderWithWriter(writer, jsonSerializer{}, nil)

	writer.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	err := f.Handle(context.Background(), newLotReceived())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestRabbitMQForwarder_Handle(t *testing.T) {
	ch := new(mockChannel)
	f := NewRabbitMQForwarderWithChannel(ch, "stock.events", jsonSerializer{}, nil)
	evt := newLotReceived()

	ch.On("PublishWithContext", mock.Anything, "stock.events", "inventory.stock.received", false, false,
		mock.MatchedBy(func(msg amqp.Publishing) bool {
			var decoded lotReceived
			if err := json.Unmarshal(msg.Body, &decoded); err != nil {
				return false
			}
			return msg.MessageId == evt.EventID().String() &&
				msg.DeliveryMode == amqp.Persistent &&
				msg.Headers["aggregate_id"] == evt.AggregateID().String() &&
				decoded.Quantity == "10"
		}),
	).Return(nil).Once()

	require.NoError(t, f.Handle(context.Background(), evt))
	ch.AssertExpectations(t)
}

func TestRabbitMQForwarder_Close(t *testing.T) {
	ch := new(mockChannel)
	ch.On("Close").Return(nil).Once()
	f := NewRabbitMQForwarderWithChannel(ch, "stock.events", jsonSerializer{}, nil)

	require.NoError(t, f.Close())
	ch.AssertExpectations(t)
}

func TestNewForwarder(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f, err := NewForwarder(config.MessagingConfig{Driver: config.MessagingDriverNone}, jsonSerializer{}, nil)
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("kafka", func(t *testing.T) {
		f, err := NewForwarder(config.MessagingConfig{
			Driver:  config.MessagingDriverKafka,
			Brokers: []string{"localhost:9092"},
			Topic:   "stock-events",
		}, jsonSerializer{}, nil)
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, "kafka", f.Name())
		assert.NoError(t, f.Close())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewForwarder(config.MessagingConfig{Driver: "nats"}, jsonSerializer{}, nil)
		assert.Error(t, err)
	})
}
