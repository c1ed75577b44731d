package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchConsumption links a transaction to one lot it drew from or restored.
// QuantityTaken is positive for a consumption and negative for a restoration
// row written by a partial reversal.
type BatchConsumption struct {
	ID                  uuid.UUID
	TransactionID       uuid.UUID
	BatchID             uuid.UUID
	Sequence            int
	QuantityTaken       decimal.Decimal
	QuantityReversed    decimal.Decimal
	CostAtConsumption   decimal.Decimal
	SourceConsumptionID *uuid.UUID
	CreatedAt           time.Time
}

// NewBatchConsumption creates a consumption row
func NewBatchConsumption(transactionID, batchID uuid.UUID, seq int, quantity, cost decimal.Decimal) BatchConsumption {
	return BatchConsumption{
		ID:                uuid.New(),
		TransactionID:     transactionID,
		BatchID:           batchID,
		Sequence:          seq,
		QuantityTaken:     quantity,
		QuantityReversed:  decimal.Zero,
		CostAtConsumption: cost,
		CreatedAt:         time.Now(),
	}
}

// newRestorationRow creates the negative mirror of a consumption row
func newRestorationRow(transactionID uuid.UUID, seq int, source *BatchConsumption, quantity decimal.Decimal) BatchConsumption {
	sourceID := source.ID
	row := NewBatchConsumption(transactionID, source.BatchID, seq, quantity.Neg(), source.CostAtConsumption)
	row.SourceConsumptionID = &sourceID
	return row
}

// IsRestoration reports whether the row puts stock back
func (c *BatchConsumption) IsRestoration() bool {
	return c.QuantityTaken.IsNegative()
}

// Unreversed returns how much of a consumption row is still consumed
func (c *BatchConsumption) Unreversed() decimal.Decimal {
	if c.IsRestoration() {
		return decimal.Zero
	}
	return c.QuantityTaken.Sub(c.QuantityReversed)
}

// markReversed records that quantity of the row was restored
func (c *BatchConsumption) markReversed(quantity decimal.Decimal) {
	c.QuantityReversed = c.QuantityReversed.Add(quantity)
}
