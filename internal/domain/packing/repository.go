package packing

import (
	"context"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
)

// OrderRepository defines the interface for packing order persistence
type OrderRepository interface {
	// FindByIDForTenant finds an order with its items
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Order, error)

	// FindByOrderNumber finds an order by its number within a tenant
	FindByOrderNumber(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*Order, error)

	// FindAllForTenant lists orders, optionally filtered by status
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, status *OrderStatus, filter shared.Filter) ([]*Order, int64, error)

	// Create inserts a new order with its items
	Create(ctx context.Context, order *Order) error

	// SaveWithVersion updates the order and its items only if the stored
	// version still equals order.Version, then increments it
	SaveWithVersion(ctx context.Context, order *Order) error
}
