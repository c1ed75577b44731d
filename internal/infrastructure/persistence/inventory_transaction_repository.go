package persistence

import (
	"context"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormTransactionRepository implements inventory.TransactionRepository using
// GORM. Rows are append-only apart from the reversal markers.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// Create inserts a transaction together with its consumption rows
func (r *GormTransactionRepository) Create(ctx context.Context, tx *inventory.InventoryTransaction) error {
	if tx.ReferenceType == "" || tx.ReferenceID == uuid.Nil {
		return inventory.ErrReferenceRequired
	}
	return translateError(r.db.WithContext(ctx).Create(models.InventoryTransactionModelFromDomain(tx)).Error)
}

// FindByID finds a transaction with its consumption rows
func (r *GormTransactionRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*inventory.InventoryTransaction, error) {
	var model models.InventoryTransactionModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID), preloadConsumptions).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindUnreversedByReference returns non-reversed transactions of a type for
// a document in write order. A nil line ID matches every line.
func (r *GormTransactionRepository) FindUnreversedByReference(ctx context.Context, tenantID uuid.UUID, ref inventory.Reference, txType inventory.TransactionType) ([]*inventory.InventoryTransaction, error) {
	query := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID), preloadConsumptions).
		Where("transaction_type = ? AND reference_type = ? AND reference_id = ?", string(txType), string(ref.Type), ref.ID).
		Where("reversed_at IS NULL")
	if ref.LineID != nil {
		query = query.Where("reference_line_id = ?", *ref.LineID)
	}

	var rows []models.InventoryTransactionModel
	if err := query.Order("product_id ASC, sequence ASC, created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return transactionsToDomain(rows), nil
}

// FindByProduct returns one page of a product's history, newest first
// unless the filter asks for ascending order
func (r *GormTransactionRepository) FindByProduct(ctx context.Context, tenantID, productID uuid.UUID, filter inventory.TransactionFilter) ([]*inventory.InventoryTransaction, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryTransactionModel{}).
		Scopes(tenantScope(tenantID)).
		Where("product_id = ?", productID)
	if filter.TransactionType != nil {
		query = query.Where("transaction_type = ?", string(*filter.TransactionType))
	}
	if filter.ReferenceType != nil {
		query = query.Where("reference_type = ?", string(*filter.ReferenceType))
	}
	if filter.ReferenceID != nil {
		query = query.Where("reference_id = ?", *filter.ReferenceID)
	}
	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}
	if filter.PerformedBy != nil {
		query = query.Where("performed_by = ?", *filter.PerformedBy)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dir := "DESC"
	if filter.OrderDir == "asc" {
		dir = "ASC"
	}
	var rows []models.InventoryTransactionModel
	if err := query.
		Scopes(preloadConsumptions, paginate(filter.Filter)).
		Order("sequence " + dir + ", created_at " + dir).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return transactionsToDomain(rows), total, nil
}

// MarkReversed stamps reversed_at on a transaction that has none yet
func (r *GormTransactionRepository) MarkReversed(ctx context.Context, tx *inventory.InventoryTransaction) error {
	at := time.Now()
	if tx.ReversedAt != nil {
		at = *tx.ReversedAt
	}

	db := r.db.WithContext(ctx)
	result := db.Model(&models.InventoryTransactionModel{}).
		Where("id = ? AND tenant_id = ? AND reversed_at IS NULL", tx.ID, tx.TenantID).
		Update("reversed_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return casMiss(db, &models.InventoryTransactionModel{}, tx.ID)
	}
	return nil
}

// UpdateConsumptionReversal persists QuantityReversed of existing rows
func (r *GormTransactionRepository) UpdateConsumptionReversal(ctx context.Context, rows []inventory.BatchConsumption) error {
	db := r.db.WithContext(ctx)
	for _, row := range rows {
		result := db.Model(&models.BatchConsumptionModel{}).
			Where("id = ?", row.ID).
			Update("quantity_reversed", row.QuantityReversed)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return casMiss(db, &models.BatchConsumptionModel{}, row.ID)
		}
	}
	return nil
}

func preloadConsumptions(db *gorm.DB) *gorm.DB {
	return db.Preload("Consumptions", func(db *gorm.DB) *gorm.DB {
		return db.Order("sequence ASC")
	})
}

func transactionsToDomain(rows []models.InventoryTransactionModel) []*inventory.InventoryTransaction {
	out := make([]*inventory.InventoryTransaction, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormTransactionRepository implements inventory.TransactionRepository
var _ inventory.TransactionRepository = (*GormTransactionRepository)(nil)
