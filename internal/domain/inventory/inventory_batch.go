package inventory

import (
	"fmt"
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryBatch is one cost lot of a physical product. It is created by
// exactly one receipt transaction and drained by consumptions.
type InventoryBatch struct {
	shared.BaseEntity
	TenantID               uuid.UUID
	ProductID              uuid.UUID
	BatchNumber            string
	Sequence               int64 // insertion order, FIFO tie-break
	InitialQuantity        decimal.Decimal
	QuantityRemaining      decimal.Decimal
	CostPerUnit            decimal.Decimal
	ReceivedAt             time.Time
	ExpiryDate             *time.Time
	IsConsumed             bool
	CreatedByTransactionID uuid.UUID
	Version                int
}

// NewInventoryBatch creates a fresh, untouched lot
func NewInventoryBatch(
	product *Product,
	batchNumber string,
	quantity, costPerUnit decimal.Decimal,
	receivedAt time.Time,
	expiryDate *time.Time,
	transactionID uuid.UUID,
) *InventoryBatch {
	seq := product.NextBatchSequence()
	if batchNumber == "" {
		batchNumber = fmt.Sprintf("%s-%06d", product.SKU, seq)
	}
	return &InventoryBatch{
		BaseEntity:             shared.NewBaseEntity(),
		TenantID:               product.TenantID,
		ProductID:              product.ID,
		BatchNumber:            batchNumber,
		Sequence:               seq,
		InitialQuantity:        quantity,
		QuantityRemaining:      quantity,
		CostPerUnit:            costPerUnit,
		ReceivedAt:             receivedAt,
		ExpiryDate:             expiryDate,
		IsConsumed:             false,
		CreatedByTransactionID: transactionID,
		Version:                1,
	}
}

// Take removes quantity from the lot. Taking more than remains is a bug in
// the caller's plan and is rejected rather than clamped.
func (b *InventoryBatch) Take(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if quantity.GreaterThan(b.QuantityRemaining) {
		return shared.NewDomainErrorf(CodeInsufficientStock,
			"Batch %s has %s remaining, cannot take %s", b.BatchNumber, b.QuantityRemaining, quantity)
	}
	b.QuantityRemaining = b.QuantityRemaining.Sub(quantity)
	b.IsConsumed = b.QuantityRemaining.IsZero()
	b.UpdatedAt = time.Now()
	return nil
}

// Restore puts quantity back into the lot, un-consuming it if needed. A lot
// never holds more than it was received with.
func (b *InventoryBatch) Restore(quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	next := b.QuantityRemaining.Add(quantity)
	if next.GreaterThan(b.InitialQuantity) {
		return shared.NewDomainErrorf("BATCH_OVERFLOW",
			"Restoring %s to batch %s would exceed its initial quantity %s", quantity, b.BatchNumber, b.InitialQuantity)
	}
	b.QuantityRemaining = next
	b.IsConsumed = false
	b.UpdatedAt = time.Now()
	return nil
}

// Drain empties an intact lot when its receipt is reversed
func (b *InventoryBatch) Drain() decimal.Decimal {
	drained := b.QuantityRemaining
	b.QuantityRemaining = decimal.Zero
	b.IsConsumed = true
	b.UpdatedAt = time.Now()
	return drained
}

// IsIntact reports whether nothing has been drawn from the lot
func (b *InventoryBatch) IsIntact() bool {
	return !b.IsConsumed && b.QuantityRemaining.Equal(b.InitialQuantity)
}

// IsExpiredAt reports whether the lot's expiry date lies before at
func (b *InventoryBatch) IsExpiredAt(at time.Time) bool {
	if b.ExpiryDate == nil {
		return false
	}
	return b.ExpiryDate.Before(at)
}

// IsAvailableAt reports whether the lot can be allocated at the given instant
func (b *InventoryBatch) IsAvailableAt(at time.Time, includeExpired bool) bool {
	if b.IsConsumed || !b.QuantityRemaining.IsPositive() {
		return false
	}
	return includeExpired || !b.IsExpiredAt(at)
}

// Value returns the remaining value of the lot at cost
func (b *InventoryBatch) Value() decimal.Decimal {
	return b.QuantityRemaining.Mul(b.CostPerUnit)
}
