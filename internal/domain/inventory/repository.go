package inventory

import (
	"context"
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
)

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// FindByIDForTenant finds a product by ID within a tenant
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*Product, error)

	// FindBySKU finds a product by its SKU within a tenant
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*Product, error)

	// FindByIDs finds several products of a tenant
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*Product, error)

	// FindChildren finds the subproducts of a physical product
	FindChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]*Product, error)

	// FindAllForTenant lists products of a tenant
	FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]*Product, int64, error)

	// ExistsBySKU checks whether a SKU is taken within a tenant
	ExistsBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (bool, error)

	// Create inserts a new product
	Create(ctx context.Context, product *Product) error

	// SaveWithVersion updates the product only if its stored version still
	// equals product.Version, then increments the version. A lost race
	// returns shared.ErrConcurrencyConflict.
	SaveWithVersion(ctx context.Context, product *Product) error
}

// BatchRepository defines the interface for inventory batch persistence
type BatchRepository interface {
	// FindOpenByProduct returns the non-consumed lots of a product
	FindOpenByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]*InventoryBatch, error)

	// FindByIDs returns the given lots
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*InventoryBatch, error)

	// FindByCreatingTransaction returns the lot created by a receipt
	FindByCreatingTransaction(ctx context.Context, tenantID, transactionID uuid.UUID) (*InventoryBatch, error)

	// FindLatestByProduct returns the most recently received lot, consumed or not
	FindLatestByProduct(ctx context.Context, tenantID, productID uuid.UUID) (*InventoryBatch, error)

	// FindByProduct lists lots of a product
	FindByProduct(ctx context.Context, tenantID, productID uuid.UUID, filter BatchFilter) ([]*InventoryBatch, int64, error)

	// Create inserts a new lot
	Create(ctx context.Context, batch *InventoryBatch) error

	// SaveWithVersion updates remaining quantity and consumed flag under a
	// version check
	SaveWithVersion(ctx context.Context, batch *InventoryBatch) error
}

// TransactionRepository defines the interface for the append-only
// transaction log
type TransactionRepository interface {
	// Create inserts a transaction together with its consumption rows
	Create(ctx context.Context, tx *InventoryTransaction) error

	// FindByID finds a transaction with its consumption rows
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*InventoryTransaction, error)

	// FindUnreversedByReference returns non-reversed transactions of a type
	// for a document, oldest first, with their consumption rows. A nil
	// lineID matches every line.
	FindUnreversedByReference(ctx context.Context, tenantID uuid.UUID, ref Reference, txType TransactionType) ([]*InventoryTransaction, error)

	// FindByProduct returns one page of a product's history, newest first
	FindByProduct(ctx context.Context, tenantID, productID uuid.UUID, filter TransactionFilter) ([]*InventoryTransaction, int64, error)

	// MarkReversed stamps reversed_at, guarded by reversed_at IS NULL. A
	// concurrent reversal returns shared.ErrConcurrencyConflict.
	MarkReversed(ctx context.Context, tx *InventoryTransaction) error

	// UpdateConsumptionReversal persists QuantityReversed of existing rows
	UpdateConsumptionReversal(ctx context.Context, rows []BatchConsumption) error
}

// ReconciliationReader loads the read-only snapshot the reconciliation
// check works on
type ReconciliationReader interface {
	// LoadSnapshots returns one snapshot per product. A nil tenantID loads
	// every tenant.
	LoadSnapshots(ctx context.Context, tenantID *uuid.UUID) ([]StockSnapshot, error)
}

// BatchFilter defines filtering options for lot listings
type BatchFilter struct {
	shared.Filter
	OnlyOpen       bool
	IncludeExpired bool
	At             time.Time
}

// TransactionFilter defines filtering options for transaction history
type TransactionFilter struct {
	shared.Filter
	TransactionType *TransactionType
	ReferenceType   *ReferenceType
	ReferenceID     *uuid.UUID
	StartDate       *time.Time
	EndDate         *time.Time
	PerformedBy     *uuid.UUID
}
