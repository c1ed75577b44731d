package inventory

import (
	"fmt"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Error codes raised by the inventory core
const (
	CodeInsufficientStock        = "INSUFFICIENT_STOCK"
	CodeWouldGoNegative          = "WOULD_GO_NEGATIVE"
	CodeAlreadyReversed          = "ALREADY_REVERSED"
	CodeNotReversible            = "NOT_REVERSIBLE"
	CodeConcurrentUpdateConflict = "CONCURRENT_UPDATE_CONFLICT"
	CodeInvalidLossPercentage    = "INVALID_LOSS_PERCENTAGE"
	CodeProductIsDerived         = "PRODUCT_IS_DERIVED"
	CodeInvalidQuantity          = "INVALID_QUANTITY"
	CodeInvalidCost              = "INVALID_COST"
	CodeReferenceRequired        = "REFERENCE_REQUIRED"
	CodeInvalidHierarchy         = "INVALID_PRODUCT_HIERARCHY"
)

var (
	ErrInsufficientStock        = shared.NewDomainError(CodeInsufficientStock, "Insufficient stock available")
	ErrWouldGoNegative          = shared.NewDomainError(CodeWouldGoNegative, "Adjustment would drive stock below zero")
	ErrAlreadyReversed          = shared.NewDomainError(CodeAlreadyReversed, "Transaction has already been reversed")
	ErrNotReversible            = shared.NewDomainError(CodeNotReversible, "Transaction cannot be reversed")
	ErrConcurrentUpdateConflict = shared.NewDomainError(CodeConcurrentUpdateConflict, "Stock was modified concurrently, retry limit reached")
	ErrInvalidLossPercentage    = shared.NewDomainError(CodeInvalidLossPercentage, "Loss percentage must be at least 0 and below 100")
	ErrProductIsDerived         = shared.NewDomainError(CodeProductIsDerived, "Derived products have no batches of their own")
	ErrInvalidQuantity          = shared.NewDomainError(CodeInvalidQuantity, "Quantity must be positive")
	ErrReferenceRequired        = shared.NewDomainError(CodeReferenceRequired, "Reference type and reference ID are required")
)

// NewInsufficientStockError reports a shortfall with the numbers the caller
// needs to render a precise message
func NewInsufficientStockError(productID uuid.UUID, requested, available decimal.Decimal) *shared.DomainError {
	err := shared.NewDomainError(CodeInsufficientStock, fmt.Sprintf(
		"Insufficient stock for product %s: requested %s, available %s",
		productID, requested.String(), available.String(),
	))
	return err.
		WithDetail("product_id", productID.String()).
		WithDetail("requested", requested.String()).
		WithDetail("available", available.String())
}

// NewWouldGoNegativeError reports an adjustment that exceeds current stock
func NewWouldGoNegativeError(productID uuid.UUID, current, delta decimal.Decimal) *shared.DomainError {
	err := shared.NewDomainError(CodeWouldGoNegative, fmt.Sprintf(
		"Adjustment of %s would drive stock of product %s below zero (current %s)",
		delta.String(), productID, current.String(),
	))
	return err.
		WithDetail("product_id", productID.String()).
		WithDetail("current_stock", current.String()).
		WithDetail("delta", delta.String())
}

// NewAlreadyReversedError reports a second reversal of the same transaction
func NewAlreadyReversedError(transactionID uuid.UUID) *shared.DomainError {
	return shared.NewDomainErrorf(CodeAlreadyReversed, "Transaction %s has already been reversed", transactionID).
		WithDetail("transaction_id", transactionID.String())
}

// NewNotReversibleError reports a transaction without a defined reverse
func NewNotReversibleError(transactionID uuid.UUID, reason string) *shared.DomainError {
	return shared.NewDomainErrorf(CodeNotReversible, "Transaction %s cannot be reversed: %s", transactionID, reason).
		WithDetail("transaction_id", transactionID.String())
}

// NewInvalidLossPercentageError reports an out-of-range loss percentage
func NewInvalidLossPercentageError(value decimal.Decimal) *shared.DomainError {
	return shared.NewDomainErrorf(CodeInvalidLossPercentage, "Loss percentage %s must be at least 0 and below 100", value.String()).
		WithDetail("loss_percentage", value.String())
}

// NewProductIsDerivedError reports a batch operation attempted on a subproduct
func NewProductIsDerivedError(productID uuid.UUID) *shared.DomainError {
	return shared.NewDomainErrorf(CodeProductIsDerived, "Product %s is a subproduct and has no batches of its own", productID).
		WithDetail("product_id", productID.String())
}
