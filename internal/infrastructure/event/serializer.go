package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/erp/stockcore/internal/domain/shared"
)

// EventSerializer turns domain events into outbox payloads and back
type EventSerializer struct {
	mu       sync.RWMutex
	registry map[string]reflect.Type
}

// NewEventSerializer creates a serializer that knows every stock and
// packing event
func NewEventSerializer() *EventSerializer {
	s := &EventSerializer{registry: make(map[string]reflect.Type)}

	s.Register(inventory.EventTypeStockReceived, &inventory.StockReceivedEvent{})
	s.Register(inventory.EventTypeStockConsumed, &inventory.StockConsumedEvent{})
	s.Register(inventory.EventTypeStockAdjusted, &inventory.StockAdjustedEvent{})
	s.Register(inventory.EventTypeTransactionReversed, &inventory.TransactionReversedEvent{})
	s.Register(inventory.EventTypeSubproductRecalculated, &inventory.SubproductRecalculatedEvent{})

	s.Register(packing.EventTypeOrderCreated, &packing.OrderCreatedEvent{})
	s.Register(packing.EventTypeOrderApproved, &packing.OrderApprovedEvent{})
	s.Register(packing.EventTypeOrderPackingStarted, &packing.OrderPackingStartedEvent{})
	s.Register(packing.EventTypeOrderItemPacked, &packing.OrderItemPackedEvent{})
	s.Register(packing.EventTypeOrderReady, &packing.OrderReadyEvent{})
	s.Register(packing.EventTypeOrderDelivered, &packing.OrderDeliveredEvent{})
	s.Register(packing.EventTypeOrderCancelled, &packing.OrderCancelledEvent{})
	return s
}

// Register maps an event type to the Go type used to decode it
func (s *EventSerializer) Register(eventType string, eventInstance shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := reflect.TypeOf(eventInstance)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s.registry[eventType] = t
}

// Serialize encodes a domain event as JSON
func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes a payload into the registered type
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	t, ok := s.registry[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	eventPtr := reflect.New(t).Interface()
	if err := json.Unmarshal(data, eventPtr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	event, ok := eventPtr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("type registered for %s does not implement DomainEvent", eventType)
	}
	return event, nil
}

// IsRegistered checks if an event type is registered
func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registry[eventType]
	return ok
}
