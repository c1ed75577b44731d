package inventory

import (
	"context"
	"errors"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineDelta moves the stock charged to one document line from From to To,
// both expressed in the line product's own units
type LineDelta struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	From        decimal.Decimal
	To          decimal.Decimal
	Reference   inventory.Reference
	PerformedBy *uuid.UUID
	Reason      string
}

// LineOutcome describes what ApplyLineDelta did
type LineOutcome struct {
	// PhysicalProduct is the product whose lots moved (the parent for a
	// subproduct line)
	PhysicalProduct *inventory.Product
	// ParentDelta is the signed change in physical units actually applied
	ParentDelta decimal.Decimal
	// Result is nil when the delta rounds to nothing
	Result *inventory.LedgerResult
}

// ApplyLineDelta charges or restores the difference between two quantities
// of a line inside the caller's transaction. Subproduct quantities are
// converted to parent units first; the conversion is applied to both ends
// so successive edits of a line always add up to the charge for its final
// quantity. Increases consume FIFO, decreases restore the most recent lots
// of this line only.
func (s *StockLedgerService) ApplyLineDelta(ctx context.Context, repos TransactionalRepositories, d LineDelta) (*LineOutcome, error) {
	if d.From.IsNegative() || d.To.IsNegative() {
		return nil, inventory.ErrInvalidQuantity
	}
	if err := d.Reference.Validate(); err != nil {
		return nil, err
	}

	product, err := repos.ProductRepo().FindByIDForTenant(ctx, d.TenantID, d.ProductID)
	if err != nil {
		return nil, err
	}
	physical := product
	from, to := d.From, d.To
	if product.IsDerived() {
		physical, err = repos.ProductRepo().FindByIDForTenant(ctx, d.TenantID, *product.ParentProductID)
		if err != nil {
			return nil, err
		}
		loss := inventory.EffectiveLoss(product, physical)
		from = inventory.ParentConsumptionFor(d.From, loss)
		to = inventory.ParentConsumptionFor(d.To, loss)
	}

	outcome := &LineOutcome{PhysicalProduct: physical, ParentDelta: decimal.Zero}
	delta := to.Sub(from)
	switch {
	case delta.IsPositive():
		charge := delta
		if product.IsDerived() {
			charge = inventory.ClampParentCharge(delta, physical.CurrentStock)
		}
		batches, err := repos.BatchRepo().FindOpenByProduct(ctx, d.TenantID, physical.ID)
		if err != nil {
			return nil, err
		}
		result, err := s.ledger.Consume(physical, batches, inventory.ConsumeCommand{
			Quantity:    charge,
			Reference:   d.Reference,
			PerformedBy: d.PerformedBy,
			Reason:      d.Reason,
		})
		if err != nil {
			return nil, lineError(err, product, d.To.Sub(d.From))
		}
		outcome.Result, outcome.ParentDelta = result, charge
	case delta.IsNegative():
		sales, err := s.unreversedSales(ctx, repos, d.TenantID, physical.ID, d.Reference)
		if err != nil {
			return nil, err
		}
		amount := restorable(delta.Neg(), sales, d.To.IsZero())
		if !amount.IsPositive() {
			break
		}
		batches, err := s.batchesOf(ctx, repos, d.TenantID, sales)
		if err != nil {
			return nil, err
		}
		result, err := s.ledger.ReverseQuantity(physical, sales, batches, inventory.PartialReverseCommand{
			Quantity:    amount,
			Reference:   d.Reference,
			PerformedBy: d.PerformedBy,
			Reason:      d.Reason,
		})
		if err != nil {
			return nil, err
		}
		outcome.Result, outcome.ParentDelta = result, amount.Neg()
	}

	if outcome.Result != nil {
		if err := s.persist(ctx, repos, physical, outcome.Result); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// restorable decides how much to give back for a decrease. Emptying a line
// returns everything still charged to it; otherwise a request that exceeds
// what is charged by no more than rounding noise is trimmed to fit.
func restorable(requested decimal.Decimal, sales []*inventory.InventoryTransaction, emptying bool) decimal.Decimal {
	charged := decimal.Zero
	for _, tx := range sales {
		charged = charged.Add(tx.UnreversedQuantity())
	}
	if emptying {
		return charged
	}
	if requested.GreaterThan(charged) && requested.Sub(charged).LessThanOrEqual(inventory.RoundingTolerance) {
		return charged
	}
	return requested
}

// lineError restates a parent shortfall in the line product's units
func lineError(err error, product *inventory.Product, requested decimal.Decimal) error {
	var de *shared.DomainError
	if !product.IsDerived() || !errors.As(err, &de) || de.Code != inventory.CodeInsufficientStock {
		return err
	}
	return de.
		WithDetail("line_product_id", product.ID.String()).
		WithDetail("line_requested", requested.String())
}
