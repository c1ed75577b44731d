package inventory

import (
	"sort"
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockLedger applies stock movements to a physical product and its lots.
// It is pure: callers load the product and its batches, call one method and
// persist everything in the returned LedgerResult in one atomic unit.
type StockLedger struct {
	allocator *FIFOAllocator
	now       func() time.Time
}

// NewStockLedger creates a ledger using the given allocator
func NewStockLedger(allocator *FIFOAllocator) *StockLedger {
	if allocator == nil {
		allocator = NewFIFOAllocator()
	}
	return &StockLedger{allocator: allocator, now: time.Now}
}

// WithClock replaces the ledger's time source
func (l *StockLedger) WithClock(now func() time.Time) *StockLedger {
	l.now = now
	return l
}

// Allocator returns the allocator used for consumptions
func (l *StockLedger) Allocator() *FIFOAllocator {
	return l.allocator
}

// LedgerResult lists everything an operation created or changed
type LedgerResult struct {
	// Transaction is the single transaction written by the operation
	Transaction *InventoryTransaction
	// CreatedBatch is set by receipts and positive adjustments
	CreatedBatch *InventoryBatch
	// TouchedBatches are existing lots whose remaining quantity changed
	TouchedBatches []*InventoryBatch
	// Plan is set by consumptions and negative adjustments
	Plan *AllocationPlan
	// ReversedTransactions were stamped with ReversedAt
	ReversedTransactions []*InventoryTransaction
	// UpdatedConsumptions are existing rows whose QuantityReversed changed
	UpdatedConsumptions []BatchConsumption
}

// ReceiveCommand describes goods entering stock
type ReceiveCommand struct {
	Quantity    decimal.Decimal
	CostPerUnit decimal.Decimal
	BatchNumber string
	ExpiryDate  *time.Time
	ReceivedAt  *time.Time
	Reference   Reference
	PerformedBy *uuid.UUID
	Reason      string
}

// Receive creates a new lot and a purchase transaction
func (l *StockLedger) Receive(product *Product, cmd ReceiveCommand) (*LedgerResult, error) {
	result, err := l.receive(product, cmd, TransactionTypePurchase, nil)
	if err != nil {
		return nil, err
	}
	product.AddDomainEvent(NewStockReceivedEvent(product, result.Transaction, result.CreatedBatch))
	return result, nil
}

func (l *StockLedger) receive(product *Product, cmd ReceiveCommand, txType TransactionType, adjType *AdjustmentType) (*LedgerResult, error) {
	if err := product.RequirePhysical(); err != nil {
		return nil, err
	}
	if !cmd.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if cmd.CostPerUnit.IsNegative() {
		return nil, shared.NewDomainError(CodeInvalidCost, "Cost per unit cannot be negative")
	}
	if err := cmd.Reference.Validate(); err != nil {
		return nil, err
	}

	receivedAt := l.now()
	if cmd.ReceivedAt != nil {
		receivedAt = *cmd.ReceivedAt
	}

	previous := product.applyStockDelta(cmd.Quantity)
	tx := newTransaction(product, txType, cmd.Quantity, previous, cmd.CostPerUnit, cmd.Reference, cmd.PerformedBy, cmd.Reason)
	tx.AdjustmentType = adjType
	batch := NewInventoryBatch(product, cmd.BatchNumber, cmd.Quantity, cmd.CostPerUnit, receivedAt, cmd.ExpiryDate, tx.ID)

	return &LedgerResult{Transaction: tx, CreatedBatch: batch}, nil
}

// ConsumeCommand describes stock drawn for a business document
type ConsumeCommand struct {
	Quantity    decimal.Decimal
	Reference   Reference
	PerformedBy *uuid.UUID
	Reason      string
	Policy      AllocationPolicy
}

// Consume draws quantity FIFO from batches and writes one sale transaction
// with one consumption row per lot. The plan is complete before any lot is
// touched, so a shortfall leaves every input unchanged.
func (l *StockLedger) Consume(product *Product, batches []*InventoryBatch, cmd ConsumeCommand) (*LedgerResult, error) {
	if err := product.RequirePhysical(); err != nil {
		return nil, err
	}
	if !cmd.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if err := cmd.Reference.Validate(); err != nil {
		return nil, err
	}

	policy := cmd.Policy
	if policy.At.IsZero() {
		policy.At = l.now()
	}
	plan := l.allocator.Allocate(cmd.Quantity, batches, policy)
	if !plan.IsSatisfied() {
		return nil, NewInsufficientStockError(product.ID, cmd.Quantity, plan.TotalAllocated)
	}

	result, err := l.applyPlan(product, batches, plan, TransactionTypeSale, nil, cmd.Reference, cmd.PerformedBy, cmd.Reason)
	if err != nil {
		return nil, err
	}
	product.AddDomainEvent(NewStockConsumedEvent(product, result.Transaction, plan))
	return result, nil
}

func (l *StockLedger) applyPlan(
	product *Product,
	batches []*InventoryBatch,
	plan *AllocationPlan,
	txType TransactionType,
	adjType *AdjustmentType,
	ref Reference,
	performedBy *uuid.UUID,
	reason string,
) (*LedgerResult, error) {
	byID := indexBatches(batches)

	previous := product.applyStockDelta(plan.TotalAllocated.Neg())
	tx := newTransaction(product, txType, plan.TotalAllocated.Neg(), previous, plan.WeightedAverageCost, ref, performedBy, reason)
	tx.AdjustmentType = adjType

	touched := make([]*InventoryBatch, 0, len(plan.Allocations))
	for i, a := range plan.Allocations {
		batch := byID[a.BatchID]
		if err := batch.Take(a.Quantity); err != nil {
			return nil, err
		}
		touched = append(touched, batch)
		tx.Consumptions = append(tx.Consumptions, NewBatchConsumption(tx.ID, batch.ID, i+1, a.Quantity, a.UnitCost))
	}

	return &LedgerResult{Transaction: tx, TouchedBatches: touched, Plan: plan}, nil
}

// AdjustCommand describes a manual correction. A positive Delta creates a
// lot at UnitCost, a negative Delta drains the oldest lots, expired ones
// included.
type AdjustCommand struct {
	Delta          decimal.Decimal
	AdjustmentType AdjustmentType
	Reason         string
	Reference      Reference
	PerformedBy    *uuid.UUID
	UnitCost       decimal.Decimal
	BatchNumber    string
	ExpiryDate     *time.Time
}

// Adjust applies a manual stock correction. It never clamps: a negative
// delta larger than current stock fails with WouldGoNegative.
func (l *StockLedger) Adjust(product *Product, batches []*InventoryBatch, cmd AdjustCommand) (*LedgerResult, error) {
	if err := product.RequirePhysical(); err != nil {
		return nil, err
	}
	if cmd.Delta.IsZero() {
		return nil, shared.NewDomainError(CodeInvalidQuantity, "Adjustment delta cannot be zero")
	}
	if !cmd.AdjustmentType.IsManual() {
		return nil, shared.NewDomainErrorf(shared.ErrInvalidInput.Code, "Invalid adjustment type %q", cmd.AdjustmentType)
	}
	if err := checkAdjustmentDirection(cmd.AdjustmentType, cmd.Delta); err != nil {
		return nil, err
	}
	if err := cmd.Reference.Validate(); err != nil {
		return nil, err
	}

	var (
		result *LedgerResult
		err    error
	)
	if cmd.Delta.IsPositive() {
		result, err = l.receive(product, ReceiveCommand{
			Quantity:    cmd.Delta,
			CostPerUnit: cmd.UnitCost,
			BatchNumber: cmd.BatchNumber,
			ExpiryDate:  cmd.ExpiryDate,
			Reference:   cmd.Reference,
			PerformedBy: cmd.PerformedBy,
			Reason:      cmd.Reason,
		}, TransactionTypeAdjustment, adjustmentTypePtr(cmd.AdjustmentType))
	} else {
		result, err = l.writeDown(product, batches, cmd)
	}
	if err != nil {
		return nil, err
	}

	product.AddDomainEvent(NewStockAdjustedEvent(product, result.Transaction))
	return result, nil
}

func (l *StockLedger) writeDown(product *Product, batches []*InventoryBatch, cmd AdjustCommand) (*LedgerResult, error) {
	amount := cmd.Delta.Neg()
	if product.CurrentStock.Add(cmd.Delta).IsNegative() {
		return nil, NewWouldGoNegativeError(product.ID, product.CurrentStock, cmd.Delta)
	}

	plan := l.allocator.Allocate(amount, batches, AllocationPolicy{IncludeExpired: true, At: l.now()})
	if !plan.IsSatisfied() {
		// lots disagree with the cached stock; refuse rather than clamp
		return nil, NewWouldGoNegativeError(product.ID, plan.TotalAllocated, cmd.Delta)
	}

	txType := TransactionTypeAdjustment
	if cmd.AdjustmentType == AdjustmentTypeDamage {
		txType = TransactionTypeDamage
	}
	return l.applyPlan(product, batches, plan, txType, adjustmentTypePtr(cmd.AdjustmentType), cmd.Reference, cmd.PerformedBy, cmd.Reason)
}

func checkAdjustmentDirection(adjType AdjustmentType, delta decimal.Decimal) error {
	switch adjType {
	case AdjustmentTypeFoundStock:
		if delta.IsNegative() {
			return shared.NewDomainError(CodeInvalidQuantity, "Found stock must increase stock")
		}
	case AdjustmentTypeDamage, AdjustmentTypeStockWriteOff, AdjustmentTypeExpiryWriteOff:
		if delta.IsPositive() {
			return shared.NewDomainErrorf(CodeInvalidQuantity, "%s must decrease stock", adjType)
		}
	}
	return nil
}

// ReverseCommand carries the actor of a full reversal
type ReverseCommand struct {
	PerformedBy *uuid.UUID
	Reason      string
}

// Reverse undoes a transaction in full. Consumptions put every lot back by
// its unreversed remainder; receipts drain the lot they created, which must
// still be intact. The reversal is recorded as one return transaction and
// the original is stamped reversed.
func (l *StockLedger) Reverse(product *Product, tx *InventoryTransaction, batches []*InventoryBatch, cmd ReverseCommand) (*LedgerResult, error) {
	if err := tx.CheckReversible(); err != nil {
		return nil, err
	}
	if tx.ProductID != product.ID {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Transaction belongs to another product")
	}

	if tx.IsReceipt() {
		return l.reverseReceipt(product, tx, batches, cmd)
	}
	return l.reverseConsumption(product, tx, batches, cmd)
}

func (l *StockLedger) reverseReceipt(product *Product, tx *InventoryTransaction, batches []*InventoryBatch, cmd ReverseCommand) (*LedgerResult, error) {
	var created *InventoryBatch
	for _, b := range batches {
		if b.CreatedByTransactionID == tx.ID {
			created = b
			break
		}
	}
	if created == nil {
		return nil, NewNotReversibleError(tx.ID, "received batch not found")
	}
	if !created.IsIntact() {
		return nil, NewNotReversibleError(tx.ID, "stock from this receipt has already been used")
	}

	drained := created.Drain()
	previous := product.applyStockDelta(drained.Neg())
	reversal := l.newReversal(product, tx, drained.Neg(), previous, AdjustmentTypeReversal, cmd.PerformedBy, cmd.Reason)
	reversal.UnitCost = created.CostPerUnit
	reversal.Consumptions = []BatchConsumption{
		NewBatchConsumption(reversal.ID, created.ID, 1, drained, created.CostPerUnit),
	}
	tx.markReversed(l.now())

	product.AddDomainEvent(NewTransactionReversedEvent(product, reversal, []*InventoryTransaction{tx}))
	return &LedgerResult{
		Transaction:          reversal,
		TouchedBatches:       []*InventoryBatch{created},
		ReversedTransactions: []*InventoryTransaction{tx},
	}, nil
}

func (l *StockLedger) reverseConsumption(product *Product, tx *InventoryTransaction, batches []*InventoryBatch, cmd ReverseCommand) (*LedgerResult, error) {
	byID := indexBatches(batches)
	restored := tx.UnreversedQuantity()

	previous := product.applyStockDelta(restored)
	reversal := l.newReversal(product, tx, restored, previous, AdjustmentTypeReversal, cmd.PerformedBy, cmd.Reason)
	reversal.UnitCost = tx.UnitCost

	touched := make([]*InventoryBatch, 0, len(tx.Consumptions))
	updated := make([]BatchConsumption, 0, len(tx.Consumptions))
	seq := 0
	for i := range tx.Consumptions {
		row := &tx.Consumptions[i]
		amount := row.Unreversed()
		if !amount.IsPositive() {
			continue
		}
		batch, ok := byID[row.BatchID]
		if !ok {
			return nil, shared.NewDomainErrorf(shared.ErrNotFound.Code, "Batch %s of transaction %s not loaded", row.BatchID, tx.ID)
		}
		if err := batch.Restore(amount); err != nil {
			return nil, err
		}
		row.markReversed(amount)
		seq++
		reversal.Consumptions = append(reversal.Consumptions, newRestorationRow(reversal.ID, seq, row, amount))
		touched = append(touched, batch)
		updated = append(updated, *row)
	}
	tx.markReversed(l.now())

	product.AddDomainEvent(NewTransactionReversedEvent(product, reversal, []*InventoryTransaction{tx}))
	return &LedgerResult{
		Transaction:          reversal,
		TouchedBatches:       touched,
		ReversedTransactions: []*InventoryTransaction{tx},
		UpdatedConsumptions:  updated,
	}, nil
}

// PartialReverseCommand describes restoring part of what a document consumed
type PartialReverseCommand struct {
	Quantity    decimal.Decimal
	Reference   Reference
	PerformedBy *uuid.UUID
	Reason      string
}

// ReverseQuantity restores exactly Quantity from the given sale transactions,
// most recently consumed lots first. Sale transactions whose rows end up
// fully restored are stamped reversed.
func (l *StockLedger) ReverseQuantity(product *Product, sales []*InventoryTransaction, batches []*InventoryBatch, cmd PartialReverseCommand) (*LedgerResult, error) {
	if err := product.RequirePhysical(); err != nil {
		return nil, err
	}
	if !cmd.Quantity.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	if err := cmd.Reference.Validate(); err != nil {
		return nil, err
	}

	type candidate struct {
		tx    *InventoryTransaction
		order int
		row   *BatchConsumption
	}
	candidates := make([]candidate, 0)
	available := decimal.Zero
	for order, tx := range sales {
		if tx.IsReversed() || tx.Type != TransactionTypeSale || tx.ProductID != product.ID {
			continue
		}
		for i := range tx.Consumptions {
			row := &tx.Consumptions[i]
			if row.Unreversed().IsPositive() {
				candidates = append(candidates, candidate{tx: tx, order: order, row: row})
				available = available.Add(row.Unreversed())
			}
		}
	}
	if cmd.Quantity.GreaterThan(available) {
		return nil, shared.NewDomainErrorf(CodeInvalidQuantity,
			"Cannot restore %s, only %s is consumed for this reference", cmd.Quantity, available).
			WithDetail("requested", cmd.Quantity.String()).
			WithDetail("available", available.String())
	}

	// LIFO: latest transaction first, then highest row sequence
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tx != b.tx {
			return writtenAfter(a.tx, b.tx, a.order, b.order)
		}
		return a.row.Sequence > b.row.Sequence
	})

	byID := indexBatches(batches)
	previous := product.applyStockDelta(cmd.Quantity)
	var source *InventoryTransaction
	if len(candidates) > 0 {
		source = candidates[0].tx
	}
	reversal := l.newReversal(product, source, cmd.Quantity, previous, AdjustmentTypePartialReversal, cmd.PerformedBy, cmd.Reason)
	reversal.ReferenceType, reversal.ReferenceID, reversal.ReferenceLineID = cmd.Reference.Type, cmd.Reference.ID, cmd.Reference.LineID

	remaining := cmd.Quantity
	touched := make([]*InventoryBatch, 0)
	updated := make([]BatchConsumption, 0)
	affected := make([]*InventoryTransaction, 0)
	cost := decimal.Zero
	seq := 0
	for _, c := range candidates {
		if !remaining.IsPositive() {
			break
		}
		amount := decimal.Min(remaining, c.row.Unreversed())
		batch, ok := byID[c.row.BatchID]
		if !ok {
			return nil, shared.NewDomainErrorf(shared.ErrNotFound.Code, "Batch %s of transaction %s not loaded", c.row.BatchID, c.tx.ID)
		}
		if err := batch.Restore(amount); err != nil {
			return nil, err
		}
		c.row.markReversed(amount)
		seq++
		reversal.Consumptions = append(reversal.Consumptions, newRestorationRow(reversal.ID, seq, c.row, amount))
		touched = append(touched, batch)
		updated = append(updated, *c.row)
		affected = appendUniqueTx(affected, c.tx)
		cost = cost.Add(amount.Mul(c.row.CostAtConsumption))
		remaining = remaining.Sub(amount)
	}
	reversal.UnitCost = cost.Div(cmd.Quantity).Round(4)

	if len(affected) != 1 {
		reversal.ReversesTransactionID = nil
	}

	now := l.now()
	stamped := make([]*InventoryTransaction, 0)
	for _, tx := range affected {
		if tx.UnreversedQuantity().IsZero() {
			tx.markReversed(now)
			stamped = append(stamped, tx)
		}
	}

	product.AddDomainEvent(NewTransactionReversedEvent(product, reversal, affected))
	return &LedgerResult{
		Transaction:          reversal,
		TouchedBatches:       touched,
		ReversedTransactions: stamped,
		UpdatedConsumptions:  updated,
	}, nil
}

func (l *StockLedger) newReversal(
	product *Product,
	original *InventoryTransaction,
	quantity, previous decimal.Decimal,
	adjType AdjustmentType,
	performedBy *uuid.UUID,
	reason string,
) *InventoryTransaction {
	ref := Reference{Type: ReferenceTypeReversal, ID: product.ID}
	if original != nil {
		ref = original.Reference()
	}
	tx := newTransaction(product, TransactionTypeReturn, quantity, previous, decimal.Zero, ref, performedBy, reason)
	tx.AdjustmentType = adjustmentTypePtr(adjType)
	if original != nil {
		id := original.ID
		tx.ReversesTransactionID = &id
	}
	return tx
}

// writtenAfter orders a product's transactions by their ledger sequence.
// Rows without one predate the column and fall back to timestamp, then to
// their position in the loaded slice.
func writtenAfter(a, b *InventoryTransaction, posA, posB int) bool {
	if a.Sequence > 0 && b.Sequence > 0 && a.Sequence != b.Sequence {
		return a.Sequence > b.Sequence
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return posA > posB
}

func indexBatches(batches []*InventoryBatch) map[uuid.UUID]*InventoryBatch {
	byID := make(map[uuid.UUID]*InventoryBatch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}
	return byID
}

func appendUniqueTx(list []*InventoryTransaction, tx *InventoryTransaction) []*InventoryTransaction {
	for _, t := range list {
		if t == tx {
			return list
		}
	}
	return append(list, tx)
}
