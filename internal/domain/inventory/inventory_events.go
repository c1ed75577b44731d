package inventory

import (
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type constants
const (
	EventTypeStockReceived          = "inventory.stock.received"
	EventTypeStockConsumed          = "inventory.stock.consumed"
	EventTypeStockAdjusted          = "inventory.stock.adjusted"
	EventTypeTransactionReversed    = "inventory.transaction.reversed"
	EventTypeSubproductRecalculated = "inventory.subproduct.recalculated"
)

// StockReceivedEvent is raised when a new batch enters stock
type StockReceivedEvent struct {
	shared.BaseDomainEvent
	ProductID     uuid.UUID       `json:"product_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	BatchID       uuid.UUID       `json:"batch_id"`
	BatchNumber   string          `json:"batch_number"`
	Quantity      decimal.Decimal `json:"quantity"`
	CostPerUnit   decimal.Decimal `json:"cost_per_unit"`
	NewStock      decimal.Decimal `json:"new_stock"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   uuid.UUID       `json:"reference_id"`
}

// NewStockReceivedEvent creates a new StockReceivedEvent
func NewStockReceivedEvent(p *Product, tx *InventoryTransaction, batch *InventoryBatch) *StockReceivedEvent {
	return &StockReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockReceived, AggregateTypeProduct, p.ID, p.TenantID),
		ProductID:       p.ID,
		TransactionID:   tx.ID,
		BatchID:         batch.ID,
		BatchNumber:     batch.BatchNumber,
		Quantity:        batch.InitialQuantity,
		CostPerUnit:     batch.CostPerUnit,
		NewStock:        tx.NewStock,
		ReferenceType:   string(tx.ReferenceType),
		ReferenceID:     tx.ReferenceID,
	}
}

// EventType returns the event type name
func (e *StockReceivedEvent) EventType() string {
	return EventTypeStockReceived
}

// ConsumedLot is one lot draw carried on a consumption event
type ConsumedLot struct {
	BatchID  uuid.UUID       `json:"batch_id"`
	Quantity decimal.Decimal `json:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// StockConsumedEvent is raised when stock is drawn for an order
type StockConsumedEvent struct {
	shared.BaseDomainEvent
	ProductID       uuid.UUID       `json:"product_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	NewStock        decimal.Decimal `json:"new_stock"`
	ReferenceType   string          `json:"reference_type"`
	ReferenceID     uuid.UUID       `json:"reference_id"`
	ReferenceLineID *uuid.UUID      `json:"reference_line_id,omitempty"`
	Lots            []ConsumedLot   `json:"lots"`
}

// NewStockConsumedEvent creates a new StockConsumedEvent
func NewStockConsumedEvent(p *Product, tx *InventoryTransaction, plan *AllocationPlan) *StockConsumedEvent {
	lots := make([]ConsumedLot, len(plan.Allocations))
	for i, a := range plan.Allocations {
		lots[i] = ConsumedLot{BatchID: a.BatchID, Quantity: a.Quantity, UnitCost: a.UnitCost}
	}
	return &StockConsumedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockConsumed, AggregateTypeProduct, p.ID, p.TenantID),
		ProductID:       p.ID,
		TransactionID:   tx.ID,
		Quantity:        plan.TotalAllocated,
		TotalCost:       plan.TotalCost,
		NewStock:        tx.NewStock,
		ReferenceType:   string(tx.ReferenceType),
		ReferenceID:     tx.ReferenceID,
		ReferenceLineID: tx.ReferenceLineID,
		Lots:            lots,
	}
}

// EventType returns the event type name
func (e *StockConsumedEvent) EventType() string {
	return EventTypeStockConsumed
}

// StockAdjustedEvent is raised for manual corrections and write-offs
type StockAdjustedEvent struct {
	shared.BaseDomainEvent
	ProductID      uuid.UUID       `json:"product_id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	AdjustmentType string          `json:"adjustment_type"`
	Delta          decimal.Decimal `json:"delta"`
	PreviousStock  decimal.Decimal `json:"previous_stock"`
	NewStock       decimal.Decimal `json:"new_stock"`
	Reason         string          `json:"reason,omitempty"`
}

// NewStockAdjustedEvent creates a new StockAdjustedEvent
func NewStockAdjustedEvent(p *Product, tx *InventoryTransaction) *StockAdjustedEvent {
	adjType := ""
	if tx.AdjustmentType != nil {
		adjType = string(*tx.AdjustmentType)
	}
	return &StockAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeStockAdjusted, AggregateTypeProduct, p.ID, p.TenantID),
		ProductID:       p.ID,
		TransactionID:   tx.ID,
		AdjustmentType:  adjType,
		Delta:           tx.Quantity,
		PreviousStock:   tx.PreviousStock,
		NewStock:        tx.NewStock,
		Reason:          tx.Reason,
	}
}

// EventType returns the event type name
func (e *StockAdjustedEvent) EventType() string {
	return EventTypeStockAdjusted
}

// TransactionReversedEvent is raised when a reversal restores stock
type TransactionReversedEvent struct {
	shared.BaseDomainEvent
	ProductID              uuid.UUID       `json:"product_id"`
	ReversalTransactionID  uuid.UUID       `json:"reversal_transaction_id"`
	ReversedTransactionIDs []uuid.UUID     `json:"reversed_transaction_ids"`
	Quantity               decimal.Decimal `json:"quantity"`
	Partial                bool            `json:"partial"`
	NewStock               decimal.Decimal `json:"new_stock"`
	ReferenceType          string          `json:"reference_type"`
	ReferenceID            uuid.UUID       `json:"reference_id"`
}

// NewTransactionReversedEvent creates a new TransactionReversedEvent
func NewTransactionReversedEvent(p *Product, reversal *InventoryTransaction, reversed []*InventoryTransaction) *TransactionReversedEvent {
	ids := make([]uuid.UUID, len(reversed))
	for i, t := range reversed {
		ids[i] = t.ID
	}
	partial := reversal.AdjustmentType != nil && *reversal.AdjustmentType == AdjustmentTypePartialReversal
	return &TransactionReversedEvent{
		BaseDomainEvent:        shared.NewBaseDomainEvent(EventTypeTransactionReversed, AggregateTypeProduct, p.ID, p.TenantID),
		ProductID:              p.ID,
		ReversalTransactionID:  reversal.ID,
		ReversedTransactionIDs: ids,
		Quantity:               reversal.Quantity,
		Partial:                partial,
		NewStock:               reversal.NewStock,
		ReferenceType:          string(reversal.ReferenceType),
		ReferenceID:            reversal.ReferenceID,
	}
}

// EventType returns the event type name
func (e *TransactionReversedEvent) EventType() string {
	return EventTypeTransactionReversed
}

// SubproductRecalculatedEvent is raised when a subproduct's cached stock
// follows a change in its parent
type SubproductRecalculatedEvent struct {
	shared.BaseDomainEvent
	ProductID       uuid.UUID       `json:"product_id"`
	ParentProductID uuid.UUID       `json:"parent_product_id"`
	ParentStock     decimal.Decimal `json:"parent_stock"`
	LossPercentage  decimal.Decimal `json:"loss_percentage"`
	PreviousStock   decimal.Decimal `json:"previous_stock"`
	NewStock        decimal.Decimal `json:"new_stock"`
}

// NewSubproductRecalculatedEvent creates a new SubproductRecalculatedEvent
func NewSubproductRecalculatedEvent(sub, parent *Product, previous, loss decimal.Decimal) *SubproductRecalculatedEvent {
	return &SubproductRecalculatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSubproductRecalculated, AggregateTypeProduct, sub.ID, sub.TenantID),
		ProductID:       sub.ID,
		ParentProductID: parent.ID,
		ParentStock:     parent.CurrentStock,
		LossPercentage:  loss,
		PreviousStock:   previous,
		NewStock:        sub.CurrentStock,
	}
}

// EventType returns the event type name
func (e *SubproductRecalculatedEvent) EventType() string {
	return EventTypeSubproductRecalculated
}
