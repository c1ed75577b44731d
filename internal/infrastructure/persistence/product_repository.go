package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/erp/stockcore/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormProductRepository implements inventory.ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// FindByIDForTenant finds a product by ID within a tenant
func (r *GormProductRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*inventory.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindBySKU finds a product by its SKU within a tenant
func (r *GormProductRepository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*inventory.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("sku = ?", sku).
		First(&model).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDs finds several products of a tenant
func (r *GormProductRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*inventory.Product, error) {
	if len(ids) == 0 {
		return []*inventory.Product{}, nil
	}
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return productsToDomain(rows), nil
}

// FindChildren finds the subproducts of a physical product, ordered by SKU
func (r *GormProductRepository) FindChildren(ctx context.Context, tenantID, parentID uuid.UUID) ([]*inventory.Product, error) {
	var rows []models.ProductModel
	if err := r.db.WithContext(ctx).
		Scopes(tenantScope(tenantID)).
		Where("parent_product_id = ?", parentID).
		Order("sku ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return productsToDomain(rows), nil
}

// FindAllForTenant lists products of a tenant. Supported filters are
// "search" (SKU or name substring) and "kind".
func (r *GormProductRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]*inventory.Product, int64, error) {
	query := r.applyFilters(
		r.db.WithContext(ctx).Model(&models.ProductModel{}).Scopes(tenantScope(tenantID)),
		filter,
	)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.ProductModel
	if err := query.
		Scopes(orderBy(filter, ProductSortFields, "sku"), paginate(filter)).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return productsToDomain(rows), total, nil
}

// ExistsBySKU checks whether a SKU is taken within a tenant
func (r *GormProductRepository) ExistsBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProductModel{}).
		Scopes(tenantScope(tenantID)).
		Where("sku = ?", sku).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a new product
func (r *GormProductRepository) Create(ctx context.Context, product *inventory.Product) error {
	model := models.ProductModelFromDomain(product)
	return translateError(r.db.WithContext(ctx).Create(model).Error)
}

// SaveWithVersion writes the mutable product columns guarded by the version
// the product was loaded with
func (r *GormProductRepository) SaveWithVersion(ctx context.Context, product *inventory.Product) error {
	loss := decimal.NullDecimal{}
	if product.LossPercentage != nil {
		loss = decimal.NewNullDecimal(*product.LossPercentage)
	}
	now := time.Now()

	db := r.db.WithContext(ctx)
	result := db.Model(&models.ProductModel{}).
		Where("id = ? AND tenant_id = ? AND version = ?", product.ID, product.TenantID, product.Version).
		Updates(map[string]any{
			"name":                      product.Name,
			"current_stock":             product.CurrentStock,
			"loss_percentage":           loss,
			"last_batch_sequence":       product.LastBatchSequence,
			"last_transaction_sequence": product.LastTransactionSequence,
			"version":                   product.Version + 1,
			"updated_at":                now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return casMiss(db, &models.ProductModel{}, product.ID)
	}

	product.IncrementVersion()
	product.UpdatedAt = now
	return nil
}

func (r *GormProductRepository) applyFilters(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "search":
			if s, ok := value.(string); ok && s != "" {
				pattern := "%" + strings.ToLower(s) + "%"
				query = query.Where("LOWER(sku) LIKE ? OR LOWER(name) LIKE ?", pattern, pattern)
			}
		case "kind":
			if s, ok := value.(string); ok && s != "" {
				query = query.Where("kind = ?", s)
			}
		}
	}
	return query
}

func productsToDomain(rows []models.ProductModel) []*inventory.Product {
	out := make([]*inventory.Product, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormProductRepository implements inventory.ProductRepository
var _ inventory.ProductRepository = (*GormProductRepository)(nil)
