package persistence

import (
	"context"
	"fmt"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// snapshotQuery aggregates lots per product and joins the parent of derived
// products. It only reads.
const snapshotQuery = `
SELECT
	p.tenant_id,
	p.id AS product_id,
	p.sku,
	p.kind,
	p.current_stock,
	COALESCE(b.remaining, 0) AS batch_remaining,
	COALESCE(b.inconsistent, 0) AS inconsistent_batches,
	parent.current_stock AS parent_stock,
	CASE WHEN p.parent_product_id IS NULL THEN 0
		ELSE COALESCE(p.loss_percentage, parent.loss_percentage, 0)
	END AS effective_loss
FROM products p
LEFT JOIN (
	SELECT
		product_id,
		SUM(quantity_remaining) AS remaining,
		SUM(CASE WHEN is_consumed <> (quantity_remaining = 0) THEN 1 ELSE 0 END) AS inconsistent
	FROM inventory_batches
	GROUP BY product_id
) b ON b.product_id = p.id
LEFT JOIN products parent ON parent.id = p.parent_product_id`

// snapshotRow is one row of snapshotQuery
type snapshotRow struct {
	TenantID            uuid.UUID           `db:"tenant_id"`
	ProductID           uuid.UUID           `db:"product_id"`
	SKU                 string              `db:"sku"`
	Kind                string              `db:"kind"`
	CurrentStock        decimal.Decimal     `db:"current_stock"`
	BatchRemaining      decimal.Decimal     `db:"batch_remaining"`
	InconsistentBatches int                 `db:"inconsistent_batches"`
	ParentStock         decimal.NullDecimal `db:"parent_stock"`
	EffectiveLoss       decimal.Decimal     `db:"effective_loss"`
}

func (r snapshotRow) toDomain() inventory.StockSnapshot {
	return inventory.StockSnapshot{
		TenantID:            r.TenantID,
		ProductID:           r.ProductID,
		SKU:                 r.SKU,
		Kind:                inventory.ProductKind(r.Kind),
		CurrentStock:        r.CurrentStock,
		BatchRemaining:      r.BatchRemaining,
		InconsistentBatches: r.InconsistentBatches,
		ParentStock:         r.ParentStock,
		EffectiveLoss:       r.EffectiveLoss,
	}
}

// SQLReconciliationReader implements inventory.ReconciliationReader with a
// single aggregate query over sqlx
type SQLReconciliationReader struct {
	db *sqlx.DB
}

// NewSQLReconciliationReader creates a new SQLReconciliationReader
func NewSQLReconciliationReader(db *sqlx.DB) *SQLReconciliationReader {
	return &SQLReconciliationReader{db: db}
}

// LoadSnapshots returns one snapshot per product ordered by SKU. A nil
// tenantID loads every tenant.
func (r *SQLReconciliationReader) LoadSnapshots(ctx context.Context, tenantID *uuid.UUID) ([]inventory.StockSnapshot, error) {
	query := snapshotQuery
	args := []any{}
	if tenantID != nil {
		query += "\nWHERE p.tenant_id = ?"
		args = append(args, *tenantID)
	}
	query += "\nORDER BY p.sku, p.id"

	rows := []snapshotRow{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load stock snapshots: %w", err)
	}
	snapshots := make([]inventory.StockSnapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = row.toDomain()
	}
	return snapshots, nil
}

// Ensure SQLReconciliationReader implements inventory.ReconciliationReader
var _ inventory.ReconciliationReader = (*SQLReconciliationReader)(nil)
