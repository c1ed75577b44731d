package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledgerFixture keeps the in-memory state a repository would hold
type ledgerFixture struct {
	ledger  *StockLedger
	product *Product
	batches []*InventoryBatch
	now     time.Time
}

func newLedgerFixture() *ledgerFixture {
	f := &ledgerFixture{
		product: newTestPhysicalProduct(nil),
		now:     time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
	}
	f.ledger = NewStockLedger(nil).WithClock(func() time.Time { return f.now })
	return f
}

func (f *ledgerFixture) receive(t *testing.T, qty, cost string) *LedgerResult {
	t.Helper()
	f.now = f.now.Add(time.Minute)
	res, err := f.ledger.Receive(f.product, ReceiveCommand{
		Quantity:    dec(qty),
		CostPerUnit: dec(cost),
		Reference:   Reference{Type: ReferenceTypePurchaseReceipt, ID: uuid.New()},
	})
	require.NoError(t, err)
	f.batches = append(f.batches, res.CreatedBatch)
	return res
}

func (f *ledgerFixture) consume(t *testing.T, qty string, ref Reference) *LedgerResult {
	t.Helper()
	f.now = f.now.Add(time.Minute)
	res, err := f.ledger.Consume(f.product, f.batches, ConsumeCommand{Quantity: dec(qty), Reference: ref})
	require.NoError(t, err)
	res.Transaction.CreatedAt = f.now
	return res
}

func (f *ledgerFixture) remainingSum() decimal.Decimal {
	total := decimal.Zero
	for _, b := range f.batches {
		if !b.IsConsumed {
			total = total.Add(b.QuantityRemaining)
		}
	}
	return total
}

func TestStockLedger_Receive(t *testing.T) {
	t.Run("Creates batch and purchase transaction", func(t *testing.T) {
		f := newLedgerFixture()
		expiry := f.now.Add(72 * time.Hour)

		res, err := f.ledger.Receive(f.product, ReceiveCommand{
			Quantity:    dec("12.5"),
			CostPerUnit: dec("4.20"),
			ExpiryDate:  &expiry,
			Reference:   Reference{Type: ReferenceTypePurchaseReceipt, ID: uuid.New()},
		})

		require.NoError(t, err)
		assert.Equal(t, TransactionTypePurchase, res.Transaction.Type)
		assert.True(t, res.Transaction.Quantity.Equal(dec("12.5")))
		assert.True(t, res.Transaction.PreviousStock.IsZero())
		assert.True(t, res.Transaction.NewStock.Equal(dec("12.5")))
		assert.Equal(t, res.Transaction.ID, res.CreatedBatch.CreatedByTransactionID)
		assert.Equal(t, int64(1), res.CreatedBatch.Sequence)
		assert.Equal(t, "BEEF-01-000001", res.CreatedBatch.BatchNumber)
		assert.True(t, f.product.CurrentStock.Equal(dec("12.5")))
		require.Len(t, f.product.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeStockReceived, f.product.GetDomainEvents()[0].EventType())
	})

	t.Run("Rejects non-positive quantity", func(t *testing.T) {
		f := newLedgerFixture()
		_, err := f.ledger.Receive(f.product, ReceiveCommand{
			Quantity:  decimal.Zero,
			Reference: Reference{Type: ReferenceTypePurchaseReceipt, ID: uuid.New()},
		})
		assert.True(t, shared.IsDomainError(err, CodeInvalidQuantity))
	})

	t.Run("Rejects missing reference", func(t *testing.T) {
		f := newLedgerFixture()
		_, err := f.ledger.Receive(f.product, ReceiveCommand{Quantity: dec("1")})
		assert.ErrorIs(t, err, ErrReferenceRequired)
		assert.True(t, f.product.CurrentStock.IsZero())
	})

	t.Run("Rejects derived products", func(t *testing.T) {
		f := newLedgerFixture()
		sub, err := NewDerivedProduct(f.product.TenantID, f.product, "BEEF-MINCE", "Mince", nil)
		require.NoError(t, err)

		_, err = f.ledger.Receive(sub, ReceiveCommand{
			Quantity:  dec("1"),
			Reference: Reference{Type: ReferenceTypePurchaseReceipt, ID: uuid.New()},
		})
		assert.True(t, shared.IsDomainError(err, CodeProductIsDerived))
	})
}

func TestStockLedger_Consume(t *testing.T) {
	t.Run("FIFO split across two lots", func(t *testing.T) {
		f := newLedgerFixture()
		b1 := f.receive(t, "10", "1").CreatedBatch
		b2 := f.receive(t, "10", "1").CreatedBatch

		res := f.consume(t, "15", orderRef())

		require.Len(t, res.Transaction.Consumptions, 2)
		assert.Equal(t, b1.ID, res.Transaction.Consumptions[0].BatchID)
		assert.True(t, res.Transaction.Consumptions[0].QuantityTaken.Equal(dec("10")))
		assert.Equal(t, b2.ID, res.Transaction.Consumptions[1].BatchID)
		assert.True(t, res.Transaction.Consumptions[1].QuantityTaken.Equal(dec("5")))
		assert.True(t, b1.IsConsumed)
		assert.True(t, b1.QuantityRemaining.IsZero())
		assert.False(t, b2.IsConsumed)
		assert.True(t, f.product.CurrentStock.Equal(dec("5")))
		assert.True(t, f.remainingSum().Equal(f.product.CurrentStock))
		assert.Equal(t, TransactionTypeSale, res.Transaction.Type)
		assert.True(t, res.Transaction.Quantity.Equal(dec("-15")))
	})

	t.Run("Insufficient stock mutates nothing", func(t *testing.T) {
		f := newLedgerFixture()
		b1 := f.receive(t, "4", "1").CreatedBatch

		_, err := f.ledger.Consume(f.product, f.batches, ConsumeCommand{Quantity: dec("5"), Reference: orderRef()})

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInsufficientStock)
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "5", de.Details["requested"])
		assert.Equal(t, "4", de.Details["available"])
		assert.Equal(t, f.product.ID.String(), de.Details["product_id"])
		assert.True(t, b1.QuantityRemaining.Equal(dec("4")))
		assert.True(t, f.product.CurrentStock.Equal(dec("4")))
	})
}

func TestStockLedger_Adjust(t *testing.T) {
	t.Run("Negative delta beyond stock fails without clamping", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "5", "1")

		_, err := f.ledger.Adjust(f.product, f.batches, AdjustCommand{
			Delta:          dec("-8"),
			AdjustmentType: AdjustmentTypeStockCount,
			Reference:      Reference{Type: ReferenceTypeStockCount, ID: uuid.New()},
		})

		assert.ErrorIs(t, err, ErrWouldGoNegative)
		assert.True(t, f.product.CurrentStock.Equal(dec("5")))
	})

	t.Run("Write-off drains expired lots first", func(t *testing.T) {
		f := newLedgerFixture()
		old := f.receive(t, "5", "1").CreatedBatch
		old.ExpiryDate = timePtr(f.now.Add(-time.Hour))
		f.receive(t, "5", "1")

		res, err := f.ledger.Adjust(f.product, f.batches, AdjustCommand{
			Delta:          dec("-5"),
			AdjustmentType: AdjustmentTypeExpiryWriteOff,
			Reference:      Reference{Type: ReferenceTypeManualAdjustment, ID: uuid.New()},
		})

		require.NoError(t, err)
		assert.Equal(t, TransactionTypeAdjustment, res.Transaction.Type)
		assert.True(t, old.IsConsumed)
		assert.True(t, f.product.CurrentStock.Equal(dec("5")))
	})

	t.Run("Damage records a damage transaction", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "5", "1")

		res, err := f.ledger.Adjust(f.product, f.batches, AdjustCommand{
			Delta:          dec("-2"),
			AdjustmentType: AdjustmentTypeDamage,
			Reference:      Reference{Type: ReferenceTypeManualAdjustment, ID: uuid.New()},
		})

		require.NoError(t, err)
		assert.Equal(t, TransactionTypeDamage, res.Transaction.Type)
		require.NotNil(t, res.Transaction.AdjustmentType)
		assert.Equal(t, AdjustmentTypeDamage, *res.Transaction.AdjustmentType)
	})

	t.Run("Positive delta creates a batch at the given cost", func(t *testing.T) {
		f := newLedgerFixture()

		res, err := f.ledger.Adjust(f.product, f.batches, AdjustCommand{
			Delta:          dec("3"),
			AdjustmentType: AdjustmentTypeFoundStock,
			UnitCost:       dec("2.5"),
			Reference:      Reference{Type: ReferenceTypeManualAdjustment, ID: uuid.New()},
		})

		require.NoError(t, err)
		require.NotNil(t, res.CreatedBatch)
		assert.True(t, res.CreatedBatch.CostPerUnit.Equal(dec("2.5")))
		assert.Equal(t, TransactionTypeAdjustment, res.Transaction.Type)
		assert.True(t, f.product.CurrentStock.Equal(dec("3")))
	})

	t.Run("Rejects reversal types and wrong directions", func(t *testing.T) {
		f := newLedgerFixture()
		ref := Reference{Type: ReferenceTypeManualAdjustment, ID: uuid.New()}

		_, err := f.ledger.Adjust(f.product, f.batches, AdjustCommand{Delta: dec("1"), AdjustmentType: AdjustmentTypeReversal, Reference: ref})
		assert.Error(t, err)

		_, err = f.ledger.Adjust(f.product, f.batches, AdjustCommand{Delta: dec("1"), AdjustmentType: AdjustmentTypeDamage, Reference: ref})
		assert.True(t, shared.IsDomainError(err, CodeInvalidQuantity))
	})
}

func TestStockLedger_Reverse(t *testing.T) {
	t.Run("Pack then cancel restores stock and lots", func(t *testing.T) {
		f := newLedgerFixture()
		b := f.receive(t, "50", "1").CreatedBatch

		sale := f.consume(t, "20", orderRef()).Transaction
		assert.True(t, f.product.CurrentStock.Equal(dec("30")))

		res, err := f.ledger.Reverse(f.product, sale, f.batches, ReverseCommand{})

		require.NoError(t, err)
		assert.True(t, f.product.CurrentStock.Equal(dec("50")))
		assert.True(t, b.QuantityRemaining.Equal(dec("50")))
		assert.Nil(t, res.CreatedBatch)
		assert.NotNil(t, sale.ReversedAt)
		assert.Equal(t, TransactionTypeReturn, res.Transaction.Type)
		require.NotNil(t, res.Transaction.ReversesTransactionID)
		assert.Equal(t, sale.ID, *res.Transaction.ReversesTransactionID)
		assert.Equal(t, sale.ReferenceID, res.Transaction.ReferenceID)
		require.Len(t, res.UpdatedConsumptions, 1)
		assert.True(t, res.UpdatedConsumptions[0].QuantityReversed.Equal(dec("20")))
		require.Len(t, res.Transaction.Consumptions, 1)
		assert.True(t, res.Transaction.Consumptions[0].QuantityTaken.Equal(dec("-20")))
	})

	t.Run("Second reversal fails with AlreadyReversed", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "10", "1")
		sale := f.consume(t, "4", orderRef()).Transaction

		_, err := f.ledger.Reverse(f.product, sale, f.batches, ReverseCommand{})
		require.NoError(t, err)

		_, err = f.ledger.Reverse(f.product, sale, f.batches, ReverseCommand{})
		assert.ErrorIs(t, err, ErrAlreadyReversed)
		assert.True(t, f.product.CurrentStock.Equal(dec("10")))
	})

	t.Run("Damage is not reversible", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "10", "1")
		res, err := f.ledger.Adjust(f.product, f.batches, AdjustCommand{
			Delta:          dec("-1"),
			AdjustmentType: AdjustmentTypeDamage,
			Reference:      Reference{Type: ReferenceTypeManualAdjustment, ID: uuid.New()},
		})
		require.NoError(t, err)

		_, err = f.ledger.Reverse(f.product, res.Transaction, f.batches, ReverseCommand{})
		assert.ErrorIs(t, err, ErrNotReversible)
	})

	t.Run("Intact receipt drains its lot", func(t *testing.T) {
		f := newLedgerFixture()
		rec := f.receive(t, "10", "1")

		res, err := f.ledger.Reverse(f.product, rec.Transaction, f.batches, ReverseCommand{})

		require.NoError(t, err)
		assert.True(t, f.product.CurrentStock.IsZero())
		assert.True(t, rec.CreatedBatch.IsConsumed)
		assert.True(t, res.Transaction.Quantity.Equal(dec("-10")))
	})

	t.Run("Receipt already drawn from is not reversible", func(t *testing.T) {
		f := newLedgerFixture()
		rec := f.receive(t, "10", "1")
		f.consume(t, "1", orderRef())

		_, err := f.ledger.Reverse(f.product, rec.Transaction, f.batches, ReverseCommand{})
		assert.ErrorIs(t, err, ErrNotReversible)
	})
}

func TestStockLedger_ReverseQuantity(t *testing.T) {
	t.Run("Reducing 10 to 6 restores exactly 4 from the latest lot", func(t *testing.T) {
		f := newLedgerFixture()
		b1 := f.receive(t, "6", "1").CreatedBatch
		b2 := f.receive(t, "6", "2").CreatedBatch
		ref := orderRef()
		sale := f.consume(t, "10", ref).Transaction

		res, err := f.ledger.ReverseQuantity(f.product, []*InventoryTransaction{sale}, f.batches, PartialReverseCommand{
			Quantity:  dec("4"),
			Reference: ref,
		})

		require.NoError(t, err)
		assert.True(t, res.Transaction.Quantity.Equal(dec("4")))
		assert.Equal(t, AdjustmentTypePartialReversal, *res.Transaction.AdjustmentType)
		assert.True(t, f.product.CurrentStock.Equal(dec("6")))
		assert.True(t, b2.QuantityRemaining.Equal(dec("6")))
		assert.True(t, b1.QuantityRemaining.IsZero())
		assert.Nil(t, sale.ReversedAt)
		assert.Empty(t, res.ReversedTransactions)
		assert.True(t, sale.UnreversedQuantity().Equal(dec("6")))
		assert.True(t, res.Transaction.UnitCost.Equal(dec("2")))
	})

	t.Run("Walks back across transactions newest first", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "20", "1")
		ref := orderRef()
		first := f.consume(t, "3", ref).Transaction
		second := f.consume(t, "2", ref).Transaction

		res, err := f.ledger.ReverseQuantity(f.product, []*InventoryTransaction{first, second}, f.batches, PartialReverseCommand{
			Quantity:  dec("4"),
			Reference: ref,
		})

		require.NoError(t, err)
		assert.NotNil(t, second.ReversedAt)
		assert.Nil(t, first.ReversedAt)
		assert.True(t, first.UnreversedQuantity().Equal(dec("1")))
		require.Len(t, res.ReversedTransactions, 1)
		assert.Equal(t, second.ID, res.ReversedTransactions[0].ID)
		assert.Nil(t, res.Transaction.ReversesTransactionID)
		assert.True(t, f.product.CurrentStock.Equal(dec("19")))
	})

	t.Run("Same timestamp falls back to write sequence", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "20", "1")
		ref := orderRef()
		first := f.consume(t, "3", ref).Transaction
		second := f.consume(t, "2", ref).Transaction
		second.CreatedAt = first.CreatedAt
		require.Greater(t, second.Sequence, first.Sequence)

		res, err := f.ledger.ReverseQuantity(f.product, []*InventoryTransaction{second, first}, f.batches, PartialReverseCommand{
			Quantity:  dec("2"),
			Reference: ref,
		})

		require.NoError(t, err)
		require.Len(t, res.ReversedTransactions, 1)
		assert.Equal(t, second.ID, res.ReversedTransactions[0].ID)
		assert.Nil(t, first.ReversedAt)
		assert.True(t, first.UnreversedQuantity().Equal(dec("3")))
	})

	t.Run("Full reversal after partial restores only the remainder", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "10", "1")
		ref := orderRef()
		sale := f.consume(t, "10", ref).Transaction

		_, err := f.ledger.ReverseQuantity(f.product, []*InventoryTransaction{sale}, f.batches, PartialReverseCommand{Quantity: dec("4"), Reference: ref})
		require.NoError(t, err)

		res, err := f.ledger.Reverse(f.product, sale, f.batches, ReverseCommand{})
		require.NoError(t, err)
		assert.True(t, res.Transaction.Quantity.Equal(dec("6")))
		assert.True(t, f.product.CurrentStock.Equal(dec("10")))
		assert.True(t, f.remainingSum().Equal(dec("10")))
	})

	t.Run("Cannot restore more than consumed", func(t *testing.T) {
		f := newLedgerFixture()
		f.receive(t, "10", "1")
		ref := orderRef()
		sale := f.consume(t, "2", ref).Transaction

		_, err := f.ledger.ReverseQuantity(f.product, []*InventoryTransaction{sale}, f.batches, PartialReverseCommand{Quantity: dec("3"), Reference: ref})

		assert.True(t, shared.IsDomainError(err, CodeInvalidQuantity))
		assert.True(t, f.product.CurrentStock.Equal(dec("8")))
	})
}
