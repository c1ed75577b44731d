package packing

import (
	"time"

	appinventory "github.com/erp/stockcore/internal/application/inventory"
	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ==================== Requests ====================

// CreateOrderRequest represents a request to create a packing order
type CreateOrderRequest struct {
	OrderNumber       string                 `json:"order_number" binding:"required,min=1,max=50"`
	CustomerReference string                 `json:"customer_reference" binding:"max=200"`
	Items             []CreateOrderItemInput `json:"items" binding:"required,min=1,dive"`
}

// CreateOrderItemInput represents an item in the create order request
type CreateOrderItemInput struct {
	ProductID uuid.UUID       `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required,decimal_gt0"`
}

// SetPackedQuantityRequest sets the packed quantity of one item
type SetPackedQuantityRequest struct {
	PackedQuantity decimal.Decimal `json:"packed_quantity" binding:"decimal_gte0"`
	PerformedBy    *uuid.UUID      `json:"-"`
}

// CancelOrderRequest represents a request to cancel an order
type CancelOrderRequest struct {
	Reason      string     `json:"reason" binding:"required,min=1,max=500"`
	PerformedBy *uuid.UUID `json:"-"`
}

// ReverseOrderRequest returns every packed quantity of an order to stock
type ReverseOrderRequest struct {
	Reason      string     `json:"reason" binding:"max=500"`
	PerformedBy *uuid.UUID `json:"-"`
}

// OrderListFilter represents filter options for order listings
type OrderListFilter struct {
	Status   string `form:"status" binding:"omitempty,oneof=awaiting_approval confirmed packing ready_for_delivery delivered cancelled"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=200"`
	OrderBy  string `form:"order_by" binding:"omitempty,oneof=order_number created_at status"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// ==================== Responses ====================

// OrderResponse represents a packing order in API responses
type OrderResponse struct {
	ID                uuid.UUID           `json:"id"`
	TenantID          uuid.UUID           `json:"tenant_id"`
	OrderNumber       string              `json:"order_number"`
	CustomerReference string              `json:"customer_reference,omitempty"`
	Status            string              `json:"status"`
	Items             []OrderItemResponse `json:"items"`
	ApprovedAt        *time.Time          `json:"approved_at,omitempty"`
	PackingStartedAt  *time.Time          `json:"packing_started_at,omitempty"`
	ReadyAt           *time.Time          `json:"ready_at,omitempty"`
	DeliveredAt       *time.Time          `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason      string              `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	Version           int                 `json:"version"`
}

// OrderItemResponse represents an order item in API responses
type OrderItemResponse struct {
	ID             uuid.UUID       `json:"id"`
	ProductID      uuid.UUID       `json:"product_id"`
	ProductSKU     string          `json:"product_sku"`
	Quantity       decimal.Decimal `json:"quantity"`
	PackedQuantity decimal.Decimal `json:"packed_quantity"`
	Complete       bool            `json:"complete"`
}

// PackedQuantityResponse is returned after a packed quantity change
type PackedQuantityResponse struct {
	Order OrderResponse `json:"order"`
	// PhysicalProductID is the product whose lots moved
	PhysicalProductID uuid.UUID                    `json:"physical_product_id"`
	PhysicalDelta     decimal.Decimal              `json:"physical_delta"`
	TransactionID     *uuid.UUID                   `json:"transaction_id,omitempty"`
	Allocations       []appinventory.LotAllocation `json:"allocations,omitempty"`
}

// ReverseOrderResponse is returned after an order's packing was undone
type ReverseOrderResponse struct {
	Order    OrderResponse                    `json:"order"`
	Reversal *appinventory.ReverseOrderResult `json:"reversal"`
}

// ==================== Converters ====================

// ToOrderResponse converts a domain Order to a response DTO
func ToOrderResponse(order *packing.Order) OrderResponse {
	items := make([]OrderItemResponse, len(order.Items))
	for i := range order.Items {
		items[i] = ToOrderItemResponse(&order.Items[i])
	}

	return OrderResponse{
		ID:                order.ID,
		TenantID:          order.TenantID,
		OrderNumber:       order.OrderNumber,
		CustomerReference: order.CustomerReference,
		Status:            string(order.Status),
		Items:             items,
		ApprovedAt:        order.ApprovedAt,
		PackingStartedAt:  order.PackingStartedAt,
		ReadyAt:           order.ReadyAt,
		DeliveredAt:       order.DeliveredAt,
		CancelledAt:       order.CancelledAt,
		CancelReason:      order.CancelReason,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
		Version:           order.Version,
	}
}

// ToOrderItemResponse converts a domain OrderItem to a response DTO
func ToOrderItemResponse(item *packing.OrderItem) OrderItemResponse {
	return OrderItemResponse{
		ID:             item.ID,
		ProductID:      item.ProductID,
		ProductSKU:     item.ProductSKU,
		Quantity:       item.Quantity,
		PackedQuantity: item.PackedQuantity,
		Complete:       item.IsComplete(),
	}
}
