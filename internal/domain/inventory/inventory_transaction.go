package inventory

import (
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the type of inventory transaction
type TransactionType string

const (
	// TransactionTypePurchase records goods received into a new batch
	TransactionTypePurchase TransactionType = "purchase"
	// TransactionTypeSale records stock consumed for an order
	TransactionTypeSale TransactionType = "sale"
	// TransactionTypeAdjustment records a manual correction
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeReturn records stock put back by a reversal
	TransactionTypeReturn TransactionType = "return"
	// TransactionTypeDamage records stock written off as damaged
	TransactionTypeDamage TransactionType = "damage"
)

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid returns true if the transaction type is valid
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypePurchase,
		TransactionTypeSale,
		TransactionTypeAdjustment,
		TransactionTypeReturn,
		TransactionTypeDamage:
		return true
	}
	return false
}

// AdjustmentType refines adjustment, damage and return transactions
type AdjustmentType string

const (
	AdjustmentTypeStockCount      AdjustmentType = "stock_count"
	AdjustmentTypeStockWriteOff   AdjustmentType = "stock_write_off"
	AdjustmentTypeExpiryWriteOff  AdjustmentType = "expiry_write_off"
	AdjustmentTypeFoundStock      AdjustmentType = "found_stock"
	AdjustmentTypeDamage          AdjustmentType = "damage"
	AdjustmentTypeReversal        AdjustmentType = "reversal"
	AdjustmentTypePartialReversal AdjustmentType = "partial_reversal"
)

// IsValid returns true if the adjustment type is valid
func (a AdjustmentType) IsValid() bool {
	switch a {
	case AdjustmentTypeStockCount,
		AdjustmentTypeStockWriteOff,
		AdjustmentTypeExpiryWriteOff,
		AdjustmentTypeFoundStock,
		AdjustmentTypeDamage,
		AdjustmentTypeReversal,
		AdjustmentTypePartialReversal:
		return true
	}
	return false
}

// IsManual reports whether callers may request this adjustment type directly.
// Reversal types are written only by the reversal log.
func (a AdjustmentType) IsManual() bool {
	return a.IsValid() && a != AdjustmentTypeReversal && a != AdjustmentTypePartialReversal
}

// ReferenceType names the business document a transaction belongs to
type ReferenceType string

const (
	ReferenceTypeOrder            ReferenceType = "order"
	ReferenceTypeManualAdjustment ReferenceType = "manual_adjustment"
	ReferenceTypePurchaseReceipt  ReferenceType = "purchase_receipt"
	ReferenceTypeStockCount       ReferenceType = "stock_count"
	ReferenceTypeReversal         ReferenceType = "reversal"
	ReferenceTypeLegacyBackfill   ReferenceType = "legacy_backfill"
)

// IsValid returns true if the reference type is known
func (r ReferenceType) IsValid() bool {
	switch r {
	case ReferenceTypeOrder,
		ReferenceTypeManualAdjustment,
		ReferenceTypePurchaseReceipt,
		ReferenceTypeStockCount,
		ReferenceTypeReversal,
		ReferenceTypeLegacyBackfill:
		return true
	}
	return false
}

// Reference ties a transaction to its originating document. Type and ID are
// mandatory, LineID identifies an order item.
type Reference struct {
	Type   ReferenceType
	ID     uuid.UUID
	LineID *uuid.UUID
}

// OrderLineReference builds the reference used by packing
func OrderLineReference(orderID, itemID uuid.UUID) Reference {
	return Reference{Type: ReferenceTypeOrder, ID: orderID, LineID: &itemID}
}

// Validate rejects missing reference fields
func (r Reference) Validate() error {
	if r.Type == "" || r.ID == uuid.Nil {
		return ErrReferenceRequired
	}
	if !r.Type.IsValid() {
		return shared.NewDomainErrorf(CodeReferenceRequired, "Unknown reference type %q", r.Type)
	}
	return nil
}

// InventoryTransaction is an append-only ledger entry. The only mutation
// allowed after creation is stamping ReversedAt.
type InventoryTransaction struct {
	ID                    uuid.UUID
	TenantID              uuid.UUID
	ProductID             uuid.UUID
	Sequence              int64 // per product, in write order
	Type                  TransactionType
	AdjustmentType        *AdjustmentType
	Quantity              decimal.Decimal // signed: positive adds stock
	PreviousStock         decimal.Decimal
	NewStock              decimal.Decimal
	UnitCost              decimal.Decimal
	ReferenceType         ReferenceType
	ReferenceID           uuid.UUID
	ReferenceLineID       *uuid.UUID
	Reason                string
	ReversesTransactionID *uuid.UUID
	ReversedAt            *time.Time
	PerformedBy           *uuid.UUID
	CreatedAt             time.Time
	Consumptions          []BatchConsumption
}

// newTransaction creates a transaction against product with the stock
// snapshot taken before and after the change
func newTransaction(
	product *Product,
	txType TransactionType,
	quantity, previousStock, unitCost decimal.Decimal,
	ref Reference,
	performedBy *uuid.UUID,
	reason string,
) *InventoryTransaction {
	return &InventoryTransaction{
		ID:              uuid.New(),
		TenantID:        product.TenantID,
		ProductID:       product.ID,
		Sequence:        product.NextTransactionSequence(),
		Type:            txType,
		Quantity:        quantity,
		PreviousStock:   previousStock,
		NewStock:        previousStock.Add(quantity),
		UnitCost:        unitCost,
		ReferenceType:   ref.Type,
		ReferenceID:     ref.ID,
		ReferenceLineID: ref.LineID,
		Reason:          reason,
		PerformedBy:     performedBy,
		CreatedAt:       time.Now(),
	}
}

// Reference returns the transaction's document reference
func (t *InventoryTransaction) Reference() Reference {
	return Reference{Type: t.ReferenceType, ID: t.ReferenceID, LineID: t.ReferenceLineID}
}

// IsReversed reports whether the transaction has been reversed
func (t *InventoryTransaction) IsReversed() bool {
	return t.ReversedAt != nil
}

// IsReceipt reports whether the transaction created a batch
func (t *InventoryTransaction) IsReceipt() bool {
	return t.Quantity.IsPositive() && (t.Type == TransactionTypePurchase || t.Type == TransactionTypeAdjustment)
}

// IsConsumption reports whether the transaction drew from batches
func (t *InventoryTransaction) IsConsumption() bool {
	return t.Quantity.IsNegative() && (t.Type == TransactionTypeSale || t.Type == TransactionTypeAdjustment)
}

// TotalCost returns the cost value of the movement
func (t *InventoryTransaction) TotalCost() decimal.Decimal {
	return t.Quantity.Abs().Mul(t.UnitCost)
}

// UnreversedQuantity sums what is still consumed across the rows
func (t *InventoryTransaction) UnreversedQuantity() decimal.Decimal {
	total := decimal.Zero
	for i := range t.Consumptions {
		total = total.Add(t.Consumptions[i].Unreversed())
	}
	return total
}

// CheckReversible returns AlreadyReversed or NotReversible when the
// transaction has no defined reverse
func (t *InventoryTransaction) CheckReversible() error {
	if t.IsReversed() {
		return NewAlreadyReversedError(t.ID)
	}
	switch t.Type {
	case TransactionTypeDamage:
		return NewNotReversibleError(t.ID, "damage write-offs are final")
	case TransactionTypeReturn:
		return NewNotReversibleError(t.ID, "reversals cannot be reversed")
	}
	if !t.IsReceipt() && !t.IsConsumption() {
		return NewNotReversibleError(t.ID, "transaction moved no stock")
	}
	return nil
}

func (t *InventoryTransaction) markReversed(at time.Time) {
	t.ReversedAt = &at
}

func adjustmentTypePtr(a AdjustmentType) *AdjustmentType {
	return &a
}
