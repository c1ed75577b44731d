package packing

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of an order in the packing workflow
type OrderStatus string

const (
	OrderStatusAwaitingApproval OrderStatus = "awaiting_approval"
	OrderStatusConfirmed        OrderStatus = "confirmed"
	OrderStatusPacking          OrderStatus = "packing"
	OrderStatusReadyForDelivery OrderStatus = "ready_for_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusAwaitingApproval, OrderStatusConfirmed, OrderStatusPacking,
		OrderStatusReadyForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo checks if the status can transition to the target status
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if target == OrderStatusCancelled {
		return !s.IsTerminal()
	}
	switch s {
	case OrderStatusAwaitingApproval:
		return target == OrderStatusConfirmed
	case OrderStatusConfirmed:
		return target == OrderStatusPacking
	case OrderStatusPacking:
		return target == OrderStatusReadyForDelivery
	case OrderStatusReadyForDelivery:
		return target == OrderStatusDelivered
	}
	return false
}

// CodeIncompleteItems is returned when an order is marked ready with
// unpacked quantities
const CodeIncompleteItems = "INCOMPLETE_ITEMS"

// OrderItem is one ordered product line. Quantity and PackedQuantity are in
// the item product's own unit, subproducts included.
type OrderItem struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ProductID      uuid.UUID
	ProductSKU     string
	Quantity       decimal.Decimal
	PackedQuantity decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsComplete reports whether the packed quantity matches the ordered one
func (i *OrderItem) IsComplete() bool {
	return i.PackedQuantity.Equal(i.Quantity)
}

// Order is the aggregate root for an order moving through packing
type Order struct {
	shared.TenantAggregateRoot
	OrderNumber       string
	CustomerReference string
	Status            OrderStatus
	Items             []OrderItem
	ApprovedAt        *time.Time
	PackingStartedAt  *time.Time
	ReadyAt           *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	CancelReason      string
}

// NewOrder creates an order awaiting approval
func NewOrder(tenantID uuid.UUID, orderNumber, customerReference string) (*Order, error) {
	if strings.TrimSpace(orderNumber) == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if len(orderNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot exceed 50 characters")
	}

	order := &Order{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		OrderNumber:         strings.TrimSpace(orderNumber),
		CustomerReference:   customerReference,
		Status:              OrderStatusAwaitingApproval,
		Items:               make([]OrderItem, 0),
	}
	order.AddDomainEvent(NewOrderCreatedEvent(order))
	return order, nil
}

// AddItem adds a product line before packing starts
func (o *Order) AddItem(productID uuid.UUID, sku string, quantity decimal.Decimal) (*OrderItem, error) {
	if o.Status != OrderStatusAwaitingApproval && o.Status != OrderStatusConfirmed {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot add items to order in %s status", o.Status))
	}
	if !quantity.IsPositive() {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	for _, item := range o.Items {
		if item.ProductID == productID {
			return nil, shared.NewDomainError("DUPLICATE_ITEM", "Product already exists in order")
		}
	}

	now := time.Now()
	o.Items = append(o.Items, OrderItem{
		ID:             uuid.New(),
		OrderID:        o.ID,
		ProductID:      productID,
		ProductSKU:     sku,
		Quantity:       quantity,
		PackedQuantity: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	o.UpdatedAt = now
	return &o.Items[len(o.Items)-1], nil
}

// Approve confirms the order, transitioning from awaiting_approval to confirmed
func (o *Order) Approve() error {
	if !o.Status.CanTransitionTo(OrderStatusConfirmed) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot approve order in %s status", o.Status))
	}
	if len(o.Items) == 0 {
		return shared.NewDomainError("NO_ITEMS", "Cannot approve order without items")
	}

	now := time.Now()
	o.Status = OrderStatusConfirmed
	o.ApprovedAt = &now
	o.UpdatedAt = now

	o.AddDomainEvent(NewOrderApprovedEvent(o))
	return nil
}

// StartPacking moves a confirmed order into packing. Every packed quantity
// starts at zero.
func (o *Order) StartPacking() error {
	if !o.Status.CanTransitionTo(OrderStatusPacking) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot start packing order in %s status", o.Status))
	}

	now := time.Now()
	for i := range o.Items {
		o.Items[i].PackedQuantity = decimal.Zero
		o.Items[i].UpdatedAt = now
	}
	o.Status = OrderStatusPacking
	o.PackingStartedAt = &now
	o.UpdatedAt = now

	o.AddDomainEvent(NewOrderPackingStartedEvent(o))
	return nil
}

// PackedDelta validates a new packed quantity for an item and returns the
// change the ledger has to apply. Positive means consume, negative means
// reverse.
func (o *Order) PackedDelta(itemID uuid.UUID, quantity decimal.Decimal) (decimal.Decimal, *OrderItem, error) {
	if o.Status != OrderStatusPacking {
		return decimal.Zero, nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot change packed quantities of order in %s status", o.Status))
	}
	item := o.GetItem(itemID)
	if item == nil {
		return decimal.Zero, nil, shared.NewDomainError("ITEM_NOT_FOUND", "Order item not found")
	}
	if quantity.IsNegative() {
		return decimal.Zero, nil, shared.NewDomainError("INVALID_QUANTITY", "Packed quantity cannot be negative")
	}
	if quantity.GreaterThan(item.Quantity) {
		return decimal.Zero, nil, shared.NewDomainErrorf("INVALID_QUANTITY",
			"Packed quantity %s exceeds ordered quantity %s", quantity, item.Quantity)
	}
	return quantity.Sub(item.PackedQuantity), item, nil
}

// SetPackedQuantity records a packed quantity once the stock movement for
// it has been committed
func (o *Order) SetPackedQuantity(itemID uuid.UUID, quantity decimal.Decimal) error {
	delta, item, err := o.PackedDelta(itemID, quantity)
	if err != nil {
		return err
	}
	if delta.IsZero() {
		return nil
	}

	now := time.Now()
	previous := item.PackedQuantity
	item.PackedQuantity = quantity
	item.UpdatedAt = now
	o.UpdatedAt = now

	o.AddDomainEvent(NewOrderItemPackedEvent(o, item, previous))
	return nil
}

// MarkReady moves a fully packed order to ready_for_delivery. Any item whose
// packed quantity differs from the ordered one blocks the transition.
func (o *Order) MarkReady() error {
	if !o.Status.CanTransitionTo(OrderStatusReadyForDelivery) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark order ready in %s status", o.Status))
	}

	incomplete := o.IncompleteItems()
	if len(incomplete) > 0 {
		ids := make([]string, len(incomplete))
		for i, item := range incomplete {
			ids[i] = item.ID.String()
		}
		return shared.NewDomainErrorf(CodeIncompleteItems, "%d item(s) are not fully packed", len(incomplete)).
			WithDetail("order_id", o.ID.String()).
			WithDetail("item_ids", ids)
	}

	now := time.Now()
	o.Status = OrderStatusReadyForDelivery
	o.ReadyAt = &now
	o.UpdatedAt = now

	o.AddDomainEvent(NewOrderReadyEvent(o))
	return nil
}

// Deliver marks the order as delivered
func (o *Order) Deliver() error {
	if !o.Status.CanTransitionTo(OrderStatusDelivered) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot deliver order in %s status", o.Status))
	}

	now := time.Now()
	o.Status = OrderStatusDelivered
	o.DeliveredAt = &now
	o.UpdatedAt = now

	o.AddDomainEvent(NewOrderDeliveredEvent(o))
	return nil
}

// CheckCancellable reports whether Cancel would succeed, so stock is only
// reversed for orders that can be cancelled
func (o *Order) CheckCancellable(reason string) error {
	if !o.Status.CanTransitionTo(OrderStatusCancelled) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel order in %s status", o.Status))
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason is required")
	}
	return nil
}

// Cancel cancels the order. Stock packed for it must be reversed in the
// same transaction that saves the cancellation.
func (o *Order) Cancel(reason string) error {
	if err := o.CheckCancellable(reason); err != nil {
		return err
	}

	previous := o.Status
	now := time.Now()
	for i := range o.Items {
		o.Items[i].PackedQuantity = decimal.Zero
		o.Items[i].UpdatedAt = now
	}
	o.Status = OrderStatusCancelled
	o.CancelledAt = &now
	o.CancelReason = reason
	o.UpdatedAt = now

	o.AddDomainEvent(NewOrderCancelledEvent(o, previous))
	return nil
}

// IncompleteItems returns the items whose packed quantity is short
func (o *Order) IncompleteItems() []OrderItem {
	result := make([]OrderItem, 0)
	for _, item := range o.Items {
		if !item.IsComplete() {
			result = append(result, item)
		}
	}
	return result
}

// GetItem returns an item by ID
func (o *Order) GetItem(itemID uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// HasPackedStock reports whether any item holds packed stock
func (o *Order) HasPackedStock() bool {
	for _, item := range o.Items {
		if item.PackedQuantity.IsPositive() {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order is delivered or cancelled
func (o *Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}
