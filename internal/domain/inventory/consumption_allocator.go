package inventory

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationPolicy controls which lots the allocator may draw from
type AllocationPolicy struct {
	// IncludeExpired lets write-offs dispose of lots past their expiry date
	IncludeExpired bool
	// At is the instant expiry is evaluated against; zero means now
	At time.Time
}

func (p AllocationPolicy) instant() time.Time {
	if p.At.IsZero() {
		return time.Now()
	}
	return p.At
}

// BatchAllocation is the share of one lot in an allocation plan
type BatchAllocation struct {
	BatchID          uuid.UUID
	BatchNumber      string
	Quantity         decimal.Decimal
	UnitCost         decimal.Decimal
	Cost             decimal.Decimal
	RemainingInBatch decimal.Decimal
	FullyConsumed    bool
}

// AllocationPlan is the complete set of lot draws for one request, computed
// before any lot is touched
type AllocationPlan struct {
	Requested           decimal.Decimal
	Allocations         []BatchAllocation
	TotalAllocated      decimal.Decimal
	TotalCost           decimal.Decimal
	WeightedAverageCost decimal.Decimal
	Shortfall           decimal.Decimal
}

// IsSatisfied reports whether the plan covers the full request
func (p *AllocationPlan) IsSatisfied() bool {
	return p.Shortfall.IsZero()
}

// FIFOAllocator draws from the oldest received lots first
type FIFOAllocator struct{}

// NewFIFOAllocator creates a FIFO allocator
func NewFIFOAllocator() *FIFOAllocator {
	return &FIFOAllocator{}
}

// Allocate builds a plan for requested over batches. The input is not
// modified. A plan with a non-zero Shortfall means the eligible lots cannot
// cover the request.
func (a *FIFOAllocator) Allocate(requested decimal.Decimal, batches []*InventoryBatch, policy AllocationPolicy) *AllocationPlan {
	eligible := a.SortBatches(filterAvailableBatches(batches, policy))

	allocations := make([]BatchAllocation, 0, len(eligible))
	remaining := requested
	totalAllocated := decimal.Zero
	totalCost := decimal.Zero

	for _, batch := range eligible {
		if !remaining.IsPositive() {
			break
		}

		take := decimal.Min(remaining, batch.QuantityRemaining)
		left := batch.QuantityRemaining.Sub(take)
		cost := take.Mul(batch.CostPerUnit)

		allocations = append(allocations, BatchAllocation{
			BatchID:          batch.ID,
			BatchNumber:      batch.BatchNumber,
			Quantity:         take,
			UnitCost:         batch.CostPerUnit,
			Cost:             cost,
			RemainingInBatch: left,
			FullyConsumed:    left.IsZero(),
		})

		totalAllocated = totalAllocated.Add(take)
		totalCost = totalCost.Add(cost)
		remaining = remaining.Sub(take)
	}

	var weightedAvgCost decimal.Decimal
	if totalAllocated.IsPositive() {
		weightedAvgCost = totalCost.Div(totalAllocated).Round(4)
	}

	shortfall := decimal.Zero
	if remaining.IsPositive() {
		shortfall = remaining
	}

	return &AllocationPlan{
		Requested:           requested,
		Allocations:         allocations,
		TotalAllocated:      totalAllocated,
		TotalCost:           totalCost,
		WeightedAverageCost: weightedAvgCost,
		Shortfall:           shortfall,
	}
}

// Available sums what the policy allows to be allocated
func (a *FIFOAllocator) Available(batches []*InventoryBatch, policy AllocationPolicy) decimal.Decimal {
	total := decimal.Zero
	for _, b := range filterAvailableBatches(batches, policy) {
		total = total.Add(b.QuantityRemaining)
	}
	return total
}

// SortBatches orders lots by received date, then insertion sequence
func (a *FIFOAllocator) SortBatches(batches []*InventoryBatch) []*InventoryBatch {
	sorted := make([]*InventoryBatch, len(batches))
	copy(sorted, batches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ReceivedAt.Equal(sorted[j].ReceivedAt) {
			return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt)
		}
		return sorted[i].Sequence < sorted[j].Sequence
	})
	return sorted
}

func filterAvailableBatches(batches []*InventoryBatch, policy AllocationPolicy) []*InventoryBatch {
	at := policy.instant()
	available := make([]*InventoryBatch, 0, len(batches))
	for _, b := range batches {
		if b != nil && b.IsAvailableAt(at, policy.IncludeExpired) {
			available = append(available, b)
		}
	}
	return available
}
