package inventory

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// RoundingTolerance is the largest gap between a rounded parent charge
	// and the parent's stock that is treated as rounding noise
	RoundingTolerance = decimal.NewFromFloat(0.01)
)

// ValidateLossPercentage enforces 0 <= p < 100. It runs whenever a loss
// percentage is written so consumption never sees a division by zero.
func ValidateLossPercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThanOrEqual(hundred) {
		return NewInvalidLossPercentageError(p)
	}
	return nil
}

// EffectiveLoss resolves the loss percentage of a subproduct: its own value,
// else the parent's, else zero
func EffectiveLoss(sub, parent *Product) decimal.Decimal {
	if sub != nil && sub.LossPercentage != nil {
		return *sub.LossPercentage
	}
	if parent != nil && parent.LossPercentage != nil {
		return *parent.LossPercentage
	}
	return decimal.Zero
}

// yieldFactor returns 1 - loss/100
func yieldFactor(loss decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(loss.Div(hundred))
}

// VirtualStock projects parent stock into subproduct units, rounded to two
// decimals
func VirtualStock(parentStock, loss decimal.Decimal) decimal.Decimal {
	return parentStock.Mul(yieldFactor(loss)).Round(2)
}

// ParentConsumptionFor converts a subproduct quantity into the parent
// quantity that must be consumed, rounded to two decimals
func ParentConsumptionFor(quantity, loss decimal.Decimal) decimal.Decimal {
	return quantity.Div(yieldFactor(loss)).Round(2)
}

// ClampParentCharge absorbs rounding noise so that ordering the whole
// advertised virtual stock never fails by a cent of parent stock
func ClampParentCharge(charge, parentStock decimal.Decimal) decimal.Decimal {
	if charge.GreaterThan(parentStock) && charge.Sub(parentStock).LessThanOrEqual(RoundingTolerance) {
		return parentStock
	}
	return charge
}

// RecalculateFrom refreshes a subproduct's cached stock from its parent.
// It returns true when the cached value changed.
func (p *Product) RecalculateFrom(parent *Product) bool {
	if !p.IsDerived() || parent == nil {
		return false
	}
	loss := EffectiveLoss(p, parent)
	next := VirtualStock(parent.CurrentStock, loss)
	if next.Equal(p.CurrentStock) {
		return false
	}
	previous := p.CurrentStock
	p.CurrentStock = next
	p.Touch()
	p.AddDomainEvent(NewSubproductRecalculatedEvent(p, parent, previous, loss))
	return true
}
