package persistence

import (
	"context"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// fifoOrder is the allocation order of lots
const fifoOrder = "received_at ASC, sequence ASC"

// GormBatchRepository implements inventory.BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// FindOpenByProduct returns the non-consumed lots of a product in FIFO order
func (r *GormBatchRepository) FindOpenByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]*inventory.InventoryBatch, error) {
	var rows []models.InventoryBatchModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("product_id = ? AND is_consumed = ?", productID, false).
		Order(fifoOrder).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return batchesToDomain(rows), nil
}

// FindByIDs returns the given lots
func (r *GormBatchRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*inventory.InventoryBatch, error) {
	if len(ids) == 0 {
		return []*inventory.InventoryBatch{}, nil
	}
	var rows []models.InventoryBatchModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id IN ?", ids).
		Order(fifoOrder).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return batchesToDomain(rows), nil
}

// FindByCreatingTransaction returns the lot created by a receipt
func (r *GormBatchRepository) FindByCreatingTransaction(ctx context.Context, tenantID, transactionID uuid.UUID) (*inventory.InventoryBatch, error) {
	var model models.InventoryBatchModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("created_by_transaction_id = ?", transactionID).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindLatestByProduct returns the most recently received lot, consumed or not
func (r *GormBatchRepository) FindLatestByProduct(ctx context.Context, tenantID, productID uuid.UUID) (*inventory.InventoryBatch, error) {
	var model models.InventoryBatchModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("product_id = ?", productID).
		Order("received_at DESC, sequence DESC").
		Take(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByProduct lists lots of a product in FIFO order
func (r *GormBatchRepository) FindByProduct(ctx context.Context, tenantID, productID uuid.UUID, filter inventory.BatchFilter) ([]*inventory.InventoryBatch, int64, error) {
	at := filter.At
	if at.IsZero() {
		at = time.Now()
	}

	query := r.db.WithContext(ctx).
		Model(&models.InventoryBatchModel{}).
		Scopes(tenantScope(tenantID)).
		Where("product_id = ?", productID)
	if filter.OnlyOpen {
		query = query.Where("is_consumed = ?", false)
	}
	if !filter.IncludeExpired {
		query = query.Where("expiry_date IS NULL OR expiry_date >= ?", at)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.InventoryBatchModel
	if err := query.Order(fifoOrder).Scopes(paginate(filter.Filter)).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return batchesToDomain(rows), total, nil
}

// Create inserts a new lot
func (r *GormBatchRepository) Create(ctx context.Context, batch *inventory.InventoryBatch) error {
	return translateError(r.db.WithContext(ctx).Create(models.InventoryBatchModelFromDomain(batch)).Error)
}

// SaveWithVersion updates remaining quantity and consumed flag guarded by
// the version the lot was loaded with
func (r *GormBatchRepository) SaveWithVersion(ctx context.Context, batch *inventory.InventoryBatch) error {
	now := time.Now()
	db := r.db.WithContext(ctx)
	result := db.Model(&models.InventoryBatchModel{}).
		Where("id = ? AND version = ?", batch.ID, batch.Version).
		Updates(map[string]any{
			"quantity_remaining": batch.QuantityRemaining,
			"is_consumed":        batch.IsConsumed,
			"version":            batch.Version + 1,
			"updated_at":         now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return casMiss(db, &models.InventoryBatchModel{}, batch.ID)
	}

	batch.Version++
	batch.UpdatedAt = now
	return nil
}

func batchesToDomain(rows []models.InventoryBatchModel) []*inventory.InventoryBatch {
	out := make([]*inventory.InventoryBatch, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormBatchRepository implements inventory.BatchRepository
var _ inventory.BatchRepository = (*GormBatchRepository)(nil)
