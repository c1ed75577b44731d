package persistence

import (
	"context"
	"time"

	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements packing.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByIDForTenant finds an order with its items
func (r *GormOrderRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*packing.Order, error) {
	var model models.PackingOrderModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID), preloadItems).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByOrderNumber finds an order by its number within a tenant
func (r *GormOrderRepository) FindByOrderNumber(ctx context.Context, tenantID uuid.UUID, orderNumber string) (*packing.Order, error) {
	var model models.PackingOrderModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID), preloadItems).
		Where("order_number = ?", orderNumber).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAllForTenant lists orders, optionally restricted to one status
func (r *GormOrderRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, status *packing.OrderStatus, filter shared.Filter) ([]*packing.Order, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PackingOrderModel{}).
		Scopes(tenantScope(tenantID))
	if status != nil {
		query = query.Where("status = ?", string(*status))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.PackingOrderModel
	if err := query.
		Scopes(preloadItems, orderBy(filter, PackingOrderSortFields, "order_number"), paginate(filter)).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]*packing.Order, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// Create inserts an order and its items
func (r *GormOrderRepository) Create(ctx context.Context, order *packing.Order) error {
	return translateError(r.db.WithContext(ctx).Create(models.PackingOrderModelFromDomain(order)).Error)
}

// SaveWithVersion writes the order header guarded by its version and
// upserts the items
func (r *GormOrderRepository) SaveWithVersion(ctx context.Context, order *packing.Order) error {
	now := time.Now()
	db := r.db.WithContext(ctx)
	result := db.Model(&models.PackingOrderModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", order.ID, order.TenantID, order.Version).
		Updates(map[string]any{
			"customer_reference": order.CustomerReference,
			"status":             string(order.Status),
			"approved_at":        order.ApprovedAt,
			"packing_started_at": order.PackingStartedAt,
			"ready_at":           order.ReadyAt,
			"delivered_at":       order.DeliveredAt,
			"cancelled_at":       order.CancelledAt,
			"cancel_reason":      order.CancelReason,
			"version":            order.Version + 1,
			"updated_at":         now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return casMiss(db, &models.PackingOrderModel{}, order.ID)
	}

	if len(order.Items) > 0 {
		items := make([]models.PackingOrderItemModel, len(order.Items))
		for i, item := range order.Items {
			items[i] = models.PackingOrderItemModelFromDomain(item)
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "packed_quantity", "updated_at"}),
		}).Create(&items).Error; err != nil {
			return err
		}
	}

	order.IncrementVersion()
	order.UpdatedAt = now
	return nil
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC, id ASC")
	})
}

// Ensure GormOrderRepository implements packing.OrderRepository
var _ packing.OrderRepository = (*GormOrderRepository)(nil)
