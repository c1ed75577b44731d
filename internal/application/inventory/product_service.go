package inventory

import (
	"context"
	"errors"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductService manages the product records the ledger works on
type ProductService struct {
	scope       TransactionScope
	productRepo inventory.ProductRepository
	propagator  *SubproductPropagator
	logger      *zap.Logger
}

// NewProductService creates a new ProductService
func NewProductService(
	scope TransactionScope,
	productRepo inventory.ProductRepository,
	propagator *SubproductPropagator,
	logger *zap.Logger,
) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductService{
		scope:       scope,
		productRepo: productRepo,
		propagator:  propagator,
		logger:      logger,
	}
}

// Create creates a physical product, or a subproduct when a parent is given
func (s *ProductService) Create(ctx context.Context, tenantID uuid.UUID, req CreateProductRequest) (*ProductResponse, error) {
	exists, err := s.productRepo.ExistsBySKU(ctx, tenantID, req.SKU)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "Product with this SKU already exists")
	}

	var product *inventory.Product
	if req.ParentProductID != nil {
		parent, err := s.productRepo.FindByIDForTenant(ctx, tenantID, *req.ParentProductID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, shared.NewDomainError(inventory.CodeInvalidHierarchy, "Parent product not found")
			}
			return nil, err
		}
		product, err = inventory.NewDerivedProduct(tenantID, parent, req.SKU, req.Name, req.LossPercentage)
		if err != nil {
			return nil, err
		}
	} else {
		product, err = inventory.NewPhysicalProduct(tenantID, req.SKU, req.Name, req.LossPercentage)
		if err != nil {
			return nil, err
		}
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		s.logger.Error("Failed to create product", zap.String("sku", req.SKU), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Product created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("sku", product.SKU),
		zap.String("kind", product.Kind.String()),
	)
	resp := ToProductResponse(product)
	return &resp, nil
}

// GetByID returns a product
func (s *ProductService) GetByID(ctx context.Context, tenantID, productID uuid.UUID) (*ProductResponse, error) {
	product, err := s.productRepo.FindByIDForTenant(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	resp := ToProductResponse(product)
	return &resp, nil
}

// GetBySKU returns a product by SKU
func (s *ProductService) GetBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*ProductResponse, error) {
	product, err := s.productRepo.FindBySKU(ctx, tenantID, sku)
	if err != nil {
		return nil, err
	}
	resp := ToProductResponse(product)
	return &resp, nil
}

// List lists products with filtering and pagination
func (s *ProductService) List(ctx context.Context, tenantID uuid.UUID, filter ProductListFilter) ([]ProductResponse, int64, error) {
	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Filters:  make(map[string]any),
	}
	if domainFilter.OrderBy == "" {
		domainFilter.OrderBy = "sku"
		if domainFilter.OrderDir == "" {
			domainFilter.OrderDir = "asc"
		}
	}
	if filter.Search != "" {
		domainFilter.Filters["search"] = filter.Search
	}
	if filter.Kind != "" {
		domainFilter.Filters["kind"] = filter.Kind
	}

	products, total, err := s.productRepo.FindAllForTenant(ctx, tenantID, domainFilter.Normalize())
	if err != nil {
		return nil, 0, err
	}
	items := make([]ProductResponse, len(products))
	for i, p := range products {
		items[i] = ToProductResponse(p)
	}
	return items, total, nil
}

// SetLossPercentage writes or clears a product's loss percentage and
// refreshes every subproduct whose effective loss may have changed
func (s *ProductService) SetLossPercentage(ctx context.Context, tenantID, productID uuid.UUID, req SetLossPercentageRequest) (*ProductResponse, error) {
	if req.LossPercentage != nil {
		if err := inventory.ValidateLossPercentage(*req.LossPercentage); err != nil {
			return nil, err
		}
	}

	var product *inventory.Product
	err := s.propagator.retrier.Do(ctx, "set_loss_percentage", func(ctx context.Context) error {
		return s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			product, err = repos.ProductRepo().FindByIDForTenant(ctx, tenantID, productID)
			if err != nil {
				return err
			}
			if err := product.SetLossPercentage(req.LossPercentage); err != nil {
				return err
			}
			return repos.ProductRepo().SaveWithVersion(ctx, product)
		})
	})
	if err != nil {
		return nil, err
	}

	if product.IsDerived() {
		err = s.propagator.RecalculateProduct(ctx, tenantID, product.ID)
	} else {
		_, err = s.propagator.RecalculateChildren(ctx, tenantID, product.ID)
	}
	if err != nil {
		s.logger.Error("Failed to refresh subproducts after loss change",
			zap.String("product_id", product.ID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("Loss percentage updated",
		zap.String("tenant_id", tenantID.String()),
		zap.String("product_id", product.ID.String()),
	)
	return s.GetByID(ctx, tenantID, product.ID)
}
