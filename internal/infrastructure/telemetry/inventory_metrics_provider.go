package telemetry

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormStockMetricsProvider implements StockMetricsProvider with aggregate
// queries over inventory_batches.
type GormStockMetricsProvider struct {
	db *gorm.DB
}

// NewGormStockMetricsProvider creates a new GormStockMetricsProvider.
func NewGormStockMetricsProvider(db *gorm.DB) *GormStockMetricsProvider {
	return &GormStockMetricsProvider{db: db}
}

// GetOpenBatchCount returns the number of lots with stock left for a tenant.
func (p *GormStockMetricsProvider) GetOpenBatchCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("inventory_batches").
		Where("tenant_id = ? AND is_consumed = ?", tenantID, false).
		Count(&count).Error
	return count, err
}

// GetStockValue returns sum(quantity_remaining * cost_per_unit) for a tenant.
func (p *GormStockMetricsProvider) GetStockValue(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Value decimal.Decimal `gorm:"column:value"`
	}
	err := p.db.WithContext(ctx).
		Table("inventory_batches").
		Select("COALESCE(SUM(quantity_remaining * cost_per_unit), 0) AS value").
		Where("tenant_id = ? AND is_consumed = ?", tenantID, false).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Value, nil
}

// GormTenantProvider lists tenants that own stock.
type GormTenantProvider struct {
	db *gorm.DB
}

// NewGormTenantProvider creates a new GormTenantProvider.
func NewGormTenantProvider(db *gorm.DB) *GormTenantProvider {
	return &GormTenantProvider{db: db}
}

// GetActiveTenantIDs returns the distinct tenant ids found in products.
func (p *GormTenantProvider) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("products").
		Distinct("tenant_id").
		Pluck("tenant_id", &ids).Error
	return ids, err
}
