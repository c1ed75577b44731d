package packing

import (
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeOrder = "PackingOrder"

// Event type constants
const (
	EventTypeOrderCreated        = "packing.order.created"
	EventTypeOrderApproved       = "packing.order.approved"
	EventTypeOrderPackingStarted = "packing.order.packing_started"
	EventTypeOrderItemPacked     = "packing.order.item_packed"
	EventTypeOrderReady          = "packing.order.ready_for_delivery"
	EventTypeOrderDelivered      = "packing.order.delivered"
	EventTypeOrderCancelled      = "packing.order.cancelled"
)

// OrderStatusChangedEvent carries the fields shared by transition events
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`
}

func newStatusChanged(eventType string, o *Order) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeOrder, o.ID, o.TenantID),
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
	}
}

// OrderCreatedEvent is raised when an order enters the workflow
type OrderCreatedEvent struct {
	OrderStatusChangedEvent
	CustomerReference string `json:"customer_reference,omitempty"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(o *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		OrderStatusChangedEvent: newStatusChanged(EventTypeOrderCreated, o),
		CustomerReference:       o.CustomerReference,
	}
}

// EventType returns the event type name
func (e *OrderCreatedEvent) EventType() string {
	return EventTypeOrderCreated
}

// OrderApprovedEvent is raised when an order is confirmed
type OrderApprovedEvent struct {
	OrderStatusChangedEvent
}

// NewOrderApprovedEvent creates a new OrderApprovedEvent
func NewOrderApprovedEvent(o *Order) *OrderApprovedEvent {
	return &OrderApprovedEvent{OrderStatusChangedEvent: newStatusChanged(EventTypeOrderApproved, o)}
}

// EventType returns the event type name
func (e *OrderApprovedEvent) EventType() string {
	return EventTypeOrderApproved
}

// OrderPackingStartedEvent is raised when packing begins
type OrderPackingStartedEvent struct {
	OrderStatusChangedEvent
}

// NewOrderPackingStartedEvent creates a new OrderPackingStartedEvent
func NewOrderPackingStartedEvent(o *Order) *OrderPackingStartedEvent {
	return &OrderPackingStartedEvent{OrderStatusChangedEvent: newStatusChanged(EventTypeOrderPackingStarted, o)}
}

// EventType returns the event type name
func (e *OrderPackingStartedEvent) EventType() string {
	return EventTypeOrderPackingStarted
}

// OrderItemPackedEvent is raised when a packed quantity changes
type OrderItemPackedEvent struct {
	OrderStatusChangedEvent
	ItemID           uuid.UUID       `json:"item_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	PreviousQuantity decimal.Decimal `json:"previous_quantity"`
	PackedQuantity   decimal.Decimal `json:"packed_quantity"`
	OrderedQuantity  decimal.Decimal `json:"ordered_quantity"`
}

// NewOrderItemPackedEvent creates a new OrderItemPackedEvent
func NewOrderItemPackedEvent(o *Order, item *OrderItem, previous decimal.Decimal) *OrderItemPackedEvent {
	return &OrderItemPackedEvent{
		OrderStatusChangedEvent: newStatusChanged(EventTypeOrderItemPacked, o),
		ItemID:                  item.ID,
		ProductID:               item.ProductID,
		PreviousQuantity:        previous,
		PackedQuantity:          item.PackedQuantity,
		OrderedQuantity:         item.Quantity,
	}
}

// EventType returns the event type name
func (e *OrderItemPackedEvent) EventType() string {
	return EventTypeOrderItemPacked
}

// OrderReadyEvent is raised when every item is packed
type OrderReadyEvent struct {
	OrderStatusChangedEvent
}

// NewOrderReadyEvent creates a new OrderReadyEvent
func NewOrderReadyEvent(o *Order) *OrderReadyEvent {
	return &OrderReadyEvent{OrderStatusChangedEvent: newStatusChanged(EventTypeOrderReady, o)}
}

// EventType returns the event type name
func (e *OrderReadyEvent) EventType() string {
	return EventTypeOrderReady
}

// OrderDeliveredEvent is raised when the order reaches the customer
type OrderDeliveredEvent struct {
	OrderStatusChangedEvent
}

// NewOrderDeliveredEvent creates a new OrderDeliveredEvent
func NewOrderDeliveredEvent(o *Order) *OrderDeliveredEvent {
	return &OrderDeliveredEvent{OrderStatusChangedEvent: newStatusChanged(EventTypeOrderDelivered, o)}
}

// EventType returns the event type name
func (e *OrderDeliveredEvent) EventType() string {
	return EventTypeOrderDelivered
}

// OrderCancelledEvent is raised when an order is cancelled
type OrderCancelledEvent struct {
	OrderStatusChangedEvent
	PreviousStatus OrderStatus `json:"previous_status"`
	Reason         string      `json:"reason"`
}

// NewOrderCancelledEvent creates a new OrderCancelledEvent
func NewOrderCancelledEvent(o *Order, previous OrderStatus) *OrderCancelledEvent {
	return &OrderCancelledEvent{
		OrderStatusChangedEvent: newStatusChanged(EventTypeOrderCancelled, o),
		PreviousStatus:          previous,
		Reason:                  o.CancelReason,
	}
}

// EventType returns the event type name
func (e *OrderCancelledEvent) EventType() string {
	return EventTypeOrderCancelled
}
