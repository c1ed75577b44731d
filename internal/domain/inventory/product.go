package inventory

import (
	"strings"
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AggregateTypeProduct is the aggregate type recorded on product events
const AggregateTypeProduct = "Product"

// ProductKind tags a product as physical (owns batches) or derived (a
// subproduct whose stock is projected from its parent)
type ProductKind string

const (
	ProductKindPhysical ProductKind = "physical"
	ProductKindDerived  ProductKind = "derived"
)

// IsValid checks if the kind is known
func (k ProductKind) IsValid() bool {
	switch k {
	case ProductKindPhysical, ProductKindDerived:
		return true
	}
	return false
}

// String returns the string representation
func (k ProductKind) String() string {
	return string(k)
}

// Product is the aggregate root for stock of one SKU.
//
// A physical product owns inventory batches and its CurrentStock is the sum
// of their remaining quantities. A derived product never owns batches: its
// CurrentStock is a cache recomputed from the parent's stock and the
// effective loss percentage.
type Product struct {
	shared.TenantAggregateRoot
	SKU               string
	Name              string
	Kind              ProductKind
	CurrentStock      decimal.Decimal
	ParentProductID   *uuid.UUID
	LossPercentage    *decimal.Decimal
	LastBatchSequence int64
	// LastTransactionSequence numbers the product's ledger entries in the
	// order they were written
	LastTransactionSequence int64
}

// NewPhysicalProduct creates a product that holds stock in batches
func NewPhysicalProduct(tenantID uuid.UUID, sku, name string, lossPercentage *decimal.Decimal) (*Product, error) {
	if err := validateProductIdentity(sku, name); err != nil {
		return nil, err
	}
	if lossPercentage != nil {
		if err := ValidateLossPercentage(*lossPercentage); err != nil {
			return nil, err
		}
	}

	return &Product{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SKU:                 strings.TrimSpace(sku),
		Name:                strings.TrimSpace(name),
		Kind:                ProductKindPhysical,
		CurrentStock:        decimal.Zero,
		LossPercentage:      copyDecimal(lossPercentage),
	}, nil
}

// NewDerivedProduct creates a subproduct of parent. The hierarchy is a single
// level deep, so the parent must itself be physical.
func NewDerivedProduct(tenantID uuid.UUID, parent *Product, sku, name string, lossPercentage *decimal.Decimal) (*Product, error) {
	if err := validateProductIdentity(sku, name); err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, shared.NewDomainError(CodeInvalidHierarchy, "Subproduct requires a parent product")
	}
	if !parent.BelongsTo(tenantID) {
		return nil, shared.NewDomainError(CodeInvalidHierarchy, "Parent product belongs to another tenant")
	}
	if parent.IsDerived() {
		return nil, shared.NewDomainErrorf(CodeInvalidHierarchy, "Product %s is a subproduct and cannot have subproducts", parent.SKU)
	}
	if lossPercentage != nil {
		if err := ValidateLossPercentage(*lossPercentage); err != nil {
			return nil, err
		}
	}

	parentID := parent.ID
	p := &Product{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		SKU:                 strings.TrimSpace(sku),
		Name:                strings.TrimSpace(name),
		Kind:                ProductKindDerived,
		ParentProductID:     &parentID,
		LossPercentage:      copyDecimal(lossPercentage),
	}
	p.CurrentStock = VirtualStock(parent.CurrentStock, EffectiveLoss(p, parent))
	return p, nil
}

func validateProductIdentity(sku, name string) error {
	if strings.TrimSpace(sku) == "" {
		return shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if len(sku) > 64 {
		return shared.NewDomainError("INVALID_SKU", "SKU cannot exceed 64 characters")
	}
	if strings.TrimSpace(name) == "" {
		return shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	return nil
}

// IsPhysical reports whether the product owns batches
func (p *Product) IsPhysical() bool {
	return p.Kind == ProductKindPhysical
}

// IsDerived reports whether the product is a subproduct
func (p *Product) IsDerived() bool {
	return p.Kind == ProductKindDerived
}

// RequirePhysical fails for subproducts, which have no batches to mutate
func (p *Product) RequirePhysical() error {
	if p.IsDerived() {
		return NewProductIsDerivedError(p.ID)
	}
	return nil
}

// SetLossPercentage validates and stores a new loss percentage. nil clears
// it, which makes a subproduct inherit its parent's value.
func (p *Product) SetLossPercentage(value *decimal.Decimal) error {
	if value != nil {
		if err := ValidateLossPercentage(*value); err != nil {
			return err
		}
	}
	p.LossPercentage = copyDecimal(value)
	p.Touch()
	return nil
}

// NextBatchSequence reserves the insertion-order number of a new batch
func (p *Product) NextBatchSequence() int64 {
	p.LastBatchSequence++
	return p.LastBatchSequence
}

// NextTransactionSequence reserves the position of a new ledger entry.
// Writes are serialized by the product version, so the numbers never repeat.
func (p *Product) NextTransactionSequence() int64 {
	p.LastTransactionSequence++
	return p.LastTransactionSequence
}

// applyStockDelta moves the cached stock and returns the previous value
func (p *Product) applyStockDelta(delta decimal.Decimal) decimal.Decimal {
	previous := p.CurrentStock
	p.CurrentStock = p.CurrentStock.Add(delta)
	p.UpdatedAt = time.Now()
	return previous
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
