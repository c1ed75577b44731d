package inventory

import (
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferenceInput identifies the business document behind a movement
type ReferenceInput struct {
	Type   string     `json:"reference_type" binding:"required"`
	ID     uuid.UUID  `json:"reference_id" binding:"required"`
	LineID *uuid.UUID `json:"reference_line_id"`
}

func (r ReferenceInput) toDomain() inventory.Reference {
	return inventory.Reference{Type: inventory.ReferenceType(r.Type), ID: r.ID, LineID: r.LineID}
}

// ReceiveStockRequest represents goods received into a new batch
type ReceiveStockRequest struct {
	ProductID   uuid.UUID       `json:"-"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required,decimal_gt0"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit" binding:"decimal_gte0"`
	BatchNumber string          `json:"batch_number" binding:"max=50"`
	ExpiryDate  *time.Time      `json:"expiry_date"`
	ReceivedAt  *time.Time      `json:"received_at"`
	Reason      string          `json:"reason" binding:"max=255"`
	Reference   ReferenceInput  `json:"reference" binding:"required"`
	PerformedBy *uuid.UUID      `json:"-"`
}

// ReceiveStockResponse is returned after a receipt
type ReceiveStockResponse struct {
	BatchID       uuid.UUID       `json:"batch_id"`
	BatchNumber   string          `json:"batch_number"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	NewStock      decimal.Decimal `json:"new_stock"`
}

// AdjustStockRequest represents a manual correction
type AdjustStockRequest struct {
	ProductID      uuid.UUID        `json:"-"`
	Delta          decimal.Decimal  `json:"delta" binding:"required"`
	AdjustmentType string           `json:"adjustment_type" binding:"required,oneof=stock_count stock_write_off expiry_write_off found_stock damage"`
	Reason         string           `json:"reason" binding:"required,max=255"`
	UnitCost       *decimal.Decimal `json:"unit_cost" binding:"omitempty,decimal_gte0"`
	ExpiryDate     *time.Time       `json:"expiry_date"`
	Reference      *ReferenceInput  `json:"reference"`
	PerformedBy    *uuid.UUID       `json:"-"`
}

// OrderConsumptionItem is one order line to consume stock for
type OrderConsumptionItem struct {
	ItemID    uuid.UUID       `json:"item_id" binding:"required"`
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required,decimal_gt0"`
}

// ConsumeForOrderRequest consumes stock for several order lines
type ConsumeForOrderRequest struct {
	OrderID     uuid.UUID              `json:"-"`
	Items       []OrderConsumptionItem `json:"items" binding:"required,min=1,dive"`
	PerformedBy *uuid.UUID             `json:"-"`
}

// LotAllocation is one lot draw in a response
type LotAllocation struct {
	BatchID     uuid.UUID       `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
}

// ErrorInfo describes a per-item failure
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ItemConsumptionResult reports the outcome for one order line
type ItemConsumptionResult struct {
	ItemID            uuid.UUID       `json:"item_id"`
	ProductID         uuid.UUID       `json:"product_id"`
	Success           bool            `json:"success"`
	TransactionID     *uuid.UUID      `json:"transaction_id,omitempty"`
	PhysicalProductID uuid.UUID       `json:"physical_product_id"`
	PhysicalQuantity  decimal.Decimal `json:"physical_quantity"`
	Allocations       []LotAllocation `json:"allocations,omitempty"`
	Error             *ErrorInfo      `json:"error,omitempty"`
}

// ConsumeForOrderResult aggregates per-line outcomes
type ConsumeForOrderResult struct {
	OrderID   uuid.UUID               `json:"order_id"`
	Items     []ItemConsumptionResult `json:"items"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
}

// ReverseOrderResult reports what an order reversal restored
type ReverseOrderResult struct {
	OrderID              uuid.UUID   `json:"order_id"`
	ReversedTransactions []uuid.UUID `json:"reversed_transactions"`
	ReversalTransactions []uuid.UUID `json:"reversal_transactions"`
}

// VirtualStockResponse is the stock a product can sell now
type VirtualStockResponse struct {
	ProductID       uuid.UUID        `json:"product_id"`
	Kind            string           `json:"kind"`
	Stock           decimal.Decimal  `json:"stock"`
	ParentProductID *uuid.UUID       `json:"parent_product_id,omitempty"`
	ParentStock     *decimal.Decimal `json:"parent_stock,omitempty"`
	LossPercentage  *decimal.Decimal `json:"loss_percentage,omitempty"`
}

// TransactionListFilter represents filter options for transaction history
type TransactionListFilter struct {
	TransactionType string     `form:"type" binding:"omitempty,oneof=purchase sale adjustment return damage"`
	ReferenceType   string     `form:"reference_type"`
	ReferenceID     *uuid.UUID `form:"reference_id"`
	StartDate       *time.Time `form:"start_date" time_format:"2006-01-02"`
	EndDate         *time.Time `form:"end_date" time_format:"2006-01-02"`
	Page            int        `form:"page" binding:"omitempty,min=1"`
	PageSize        int        `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderDir        string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// ConsumptionResponse is one lot row of a transaction
type ConsumptionResponse struct {
	BatchID             uuid.UUID       `json:"batch_id"`
	Sequence            int             `json:"sequence"`
	QuantityTaken       decimal.Decimal `json:"quantity_taken"`
	QuantityReversed    decimal.Decimal `json:"quantity_reversed"`
	CostAtConsumption   decimal.Decimal `json:"cost_at_consumption"`
	SourceConsumptionID *uuid.UUID      `json:"source_consumption_id,omitempty"`
}

// TransactionResponse represents a ledger transaction in API responses
type TransactionResponse struct {
	ID                    uuid.UUID             `json:"id"`
	ProductID             uuid.UUID             `json:"product_id"`
	Type                  string                `json:"type"`
	AdjustmentType        *string               `json:"adjustment_type,omitempty"`
	Quantity              decimal.Decimal       `json:"quantity"`
	PreviousStock         decimal.Decimal       `json:"previous_stock"`
	NewStock              decimal.Decimal       `json:"new_stock"`
	UnitCost              decimal.Decimal       `json:"unit_cost"`
	ReferenceType         string                `json:"reference_type"`
	ReferenceID           uuid.UUID             `json:"reference_id"`
	ReferenceLineID       *uuid.UUID            `json:"reference_line_id,omitempty"`
	Reason                string                `json:"reason,omitempty"`
	ReversesTransactionID *uuid.UUID            `json:"reverses_transaction_id,omitempty"`
	ReversedAt            *time.Time            `json:"reversed_at,omitempty"`
	PerformedBy           *uuid.UUID            `json:"performed_by,omitempty"`
	CreatedAt             time.Time             `json:"created_at"`
	Consumptions          []ConsumptionResponse `json:"consumptions"`
}

// ToTransactionResponse converts a domain transaction
func ToTransactionResponse(tx *inventory.InventoryTransaction) TransactionResponse {
	var adjType *string
	if tx.AdjustmentType != nil {
		s := string(*tx.AdjustmentType)
		adjType = &s
	}
	rows := make([]ConsumptionResponse, len(tx.Consumptions))
	for i, c := range tx.Consumptions {
		rows[i] = ConsumptionResponse{
			BatchID:             c.BatchID,
			Sequence:            c.Sequence,
			QuantityTaken:       c.QuantityTaken,
			QuantityReversed:    c.QuantityReversed,
			CostAtConsumption:   c.CostAtConsumption,
			SourceConsumptionID: c.SourceConsumptionID,
		}
	}
	return TransactionResponse{
		ID:                    tx.ID,
		ProductID:             tx.ProductID,
		Type:                  string(tx.Type),
		AdjustmentType:        adjType,
		Quantity:              tx.Quantity,
		PreviousStock:         tx.PreviousStock,
		NewStock:              tx.NewStock,
		UnitCost:              tx.UnitCost,
		ReferenceType:         string(tx.ReferenceType),
		ReferenceID:           tx.ReferenceID,
		ReferenceLineID:       tx.ReferenceLineID,
		Reason:                tx.Reason,
		ReversesTransactionID: tx.ReversesTransactionID,
		ReversedAt:            tx.ReversedAt,
		PerformedBy:           tx.PerformedBy,
		CreatedAt:             tx.CreatedAt,
		Consumptions:          rows,
	}
}

// BatchResponse represents a lot in API responses
type BatchResponse struct {
	ID                uuid.UUID       `json:"id"`
	BatchNumber       string          `json:"batch_number"`
	Sequence          int64           `json:"sequence"`
	InitialQuantity   decimal.Decimal `json:"initial_quantity"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
	ReceivedAt        time.Time       `json:"received_at"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	IsConsumed        bool            `json:"is_consumed"`
	IsExpired         bool            `json:"is_expired"`
}

// ToBatchResponse converts a domain batch
func ToBatchResponse(b *inventory.InventoryBatch, at time.Time) BatchResponse {
	return BatchResponse{
		ID:                b.ID,
		BatchNumber:       b.BatchNumber,
		Sequence:          b.Sequence,
		InitialQuantity:   b.InitialQuantity,
		QuantityRemaining: b.QuantityRemaining,
		CostPerUnit:       b.CostPerUnit,
		ReceivedAt:        b.ReceivedAt,
		ExpiryDate:        b.ExpiryDate,
		IsConsumed:        b.IsConsumed,
		IsExpired:         b.IsExpiredAt(at),
	}
}

// BatchListFilter represents filter options for batch listings
type BatchListFilter struct {
	OnlyOpen bool `form:"only_open"`
	Page     int  `form:"page" binding:"omitempty,min=1"`
	PageSize int  `form:"page_size" binding:"omitempty,min=1,max=200"`
}

// CreateProductRequest creates a physical product or a subproduct
type CreateProductRequest struct {
	SKU             string           `json:"sku" binding:"required,max=64"`
	Name            string           `json:"name" binding:"required,max=200"`
	ParentProductID *uuid.UUID       `json:"parent_product_id"`
	LossPercentage  *decimal.Decimal `json:"loss_percentage"`
}

// SetLossPercentageRequest writes or clears a loss percentage
type SetLossPercentageRequest struct {
	LossPercentage *decimal.Decimal `json:"loss_percentage"`
}

// ProductResponse represents a product in API responses
type ProductResponse struct {
	ID              uuid.UUID        `json:"id"`
	TenantID        uuid.UUID        `json:"tenant_id"`
	SKU             string           `json:"sku"`
	Name            string           `json:"name"`
	Kind            string           `json:"kind"`
	CurrentStock    decimal.Decimal  `json:"current_stock"`
	ParentProductID *uuid.UUID       `json:"parent_product_id,omitempty"`
	LossPercentage  *decimal.Decimal `json:"loss_percentage,omitempty"`
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ToProductResponse converts a domain product
func ToProductResponse(p *inventory.Product) ProductResponse {
	return ProductResponse{
		ID:              p.ID,
		TenantID:        p.TenantID,
		SKU:             p.SKU,
		Name:            p.Name,
		Kind:            string(p.Kind),
		CurrentStock:    p.CurrentStock,
		ParentProductID: p.ParentProductID,
		LossPercentage:  p.LossPercentage,
		Version:         p.Version,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// ProductListFilter represents filter options for product listings
type ProductListFilter struct {
	Search   string `form:"search"`
	Kind     string `form:"kind" binding:"omitempty,oneof=physical derived"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderBy  string `form:"order_by" binding:"omitempty,oneof=sku name created_at current_stock"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}
