package inventory

import (
	"testing"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateLossPercentage(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"Zero", "0", true},
		{"Typical", "15", true},
		{"Just below hundred", "99.99", true},
		{"Hundred", "100", false},
		{"Above hundred", "120", false},
		{"Negative", "-0.01", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLossPercentage(dec(tt.value))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidLossPercentage)
			}
		})
	}
}

func TestEffectiveLoss(t *testing.T) {
	parent := newTestPhysicalProduct(decPtr("10"))

	t.Run("Subproduct value wins", func(t *testing.T) {
		sub := &Product{Kind: ProductKindDerived, LossPercentage: decPtr("15")}
		assert.True(t, EffectiveLoss(sub, parent).Equal(dec("15")))
	})

	t.Run("Falls back to parent", func(t *testing.T) {
		sub := &Product{Kind: ProductKindDerived}
		assert.True(t, EffectiveLoss(sub, parent).Equal(dec("10")))
	})

	t.Run("Defaults to zero", func(t *testing.T) {
		sub := &Product{Kind: ProductKindDerived}
		assert.True(t, EffectiveLoss(sub, newTestPhysicalProduct(nil)).IsZero())
	})
}

func TestVirtualStockAndParentConsumption(t *testing.T) {
	t.Run("Subproduct round trip at 15 percent", func(t *testing.T) {
		virtual := VirtualStock(dec("100"), dec("15"))
		assert.Equal(t, "85", virtual.String())
		assert.Equal(t, "100", ParentConsumptionFor(virtual, dec("15")).String())
	})

	t.Run("Rounds to two decimals", func(t *testing.T) {
		assert.Equal(t, "8.5", VirtualStock(dec("10"), dec("15")).String())
		assert.Equal(t, "2.35", ParentConsumptionFor(dec("2"), dec("15")).String())
		assert.Equal(t, "33.33", VirtualStock(dec("100"), dec("66.666666")).String())
	})

	t.Run("Zero loss is identity", func(t *testing.T) {
		assert.True(t, VirtualStock(dec("12.34"), decimal.Zero).Equal(dec("12.34")))
		assert.True(t, ParentConsumptionFor(dec("12.34"), decimal.Zero).Equal(dec("12.34")))
	})
}

func TestClampParentCharge(t *testing.T) {
	assert.True(t, ClampParentCharge(dec("10.01"), dec("10")).Equal(dec("10")))
	assert.True(t, ClampParentCharge(dec("10.02"), dec("10")).Equal(dec("10.02")))
	assert.True(t, ClampParentCharge(dec("9"), dec("10")).Equal(dec("9")))
}

func TestProduct_RecalculateFrom(t *testing.T) {
	parent := newTestPhysicalProduct(nil)
	parent.CurrentStock = dec("100")

	sub, err := NewDerivedProduct(parent.TenantID, parent, "BEEF-MINCE", "Minced beef", decPtr("15"))
	require.NoError(t, err)
	assert.True(t, sub.CurrentStock.Equal(dec("85")))

	parent.CurrentStock = dec("40")
	changed := sub.RecalculateFrom(parent)

	assert.True(t, changed)
	assert.True(t, sub.CurrentStock.Equal(dec("34")))
	require.Len(t, sub.GetDomainEvents(), 1)
	evt, ok := sub.GetDomainEvents()[0].(*SubproductRecalculatedEvent)
	require.True(t, ok)
	assert.True(t, evt.PreviousStock.Equal(dec("85")))

	assert.False(t, sub.RecalculateFrom(parent))
}

func TestNewDerivedProduct(t *testing.T) {
	parent := newTestPhysicalProduct(nil)

	t.Run("Parent must be physical", func(t *testing.T) {
		sub, err := NewDerivedProduct(parent.TenantID, parent, "SUB-1", "Sub", nil)
		require.NoError(t, err)

		_, err = NewDerivedProduct(parent.TenantID, sub, "SUB-2", "Sub of sub", nil)
		assert.True(t, shared.IsDomainError(err, CodeInvalidHierarchy))
	})

	t.Run("Parent must share the tenant", func(t *testing.T) {
		_, err := NewDerivedProduct(uuid.New(), parent, "SUB-3", "Sub", nil)
		assert.True(t, shared.IsDomainError(err, CodeInvalidHierarchy))
	})

	t.Run("Loss percentage validated at write time", func(t *testing.T) {
		_, err := NewDerivedProduct(parent.TenantID, parent, "SUB-4", "Sub", decPtr("100"))
		assert.ErrorIs(t, err, ErrInvalidLossPercentage)

		sub, err := NewDerivedProduct(parent.TenantID, parent, "SUB-5", "Sub", nil)
		require.NoError(t, err)
		assert.ErrorIs(t, sub.SetLossPercentage(decPtr("-1")), ErrInvalidLossPercentage)
		assert.Nil(t, sub.LossPercentage)
	})
}

func TestReconciliationReport(t *testing.T) {
	tenant := uuid.New()
	snapshots := []StockSnapshot{
		{TenantID: tenant, ProductID: uuid.New(), SKU: "A", Kind: ProductKindPhysical, CurrentStock: dec("10"), BatchRemaining: dec("10")},
		{TenantID: tenant, ProductID: uuid.New(), SKU: "B", Kind: ProductKindPhysical, CurrentStock: dec("7"), BatchRemaining: dec("5"), InconsistentBatches: 1},
		{TenantID: tenant, ProductID: uuid.New(), SKU: "C", Kind: ProductKindDerived, CurrentStock: dec("85"),
			ParentStock: decimal.NewNullDecimal(dec("100")), EffectiveLoss: dec("15")},
		{TenantID: tenant, ProductID: uuid.New(), SKU: "D", Kind: ProductKindDerived, CurrentStock: dec("90"),
			ParentStock: decimal.NewNullDecimal(dec("100")), EffectiveLoss: dec("15")},
	}

	report := BuildReconciliationReport(snapshots, snapshotTime)

	assert.False(t, report.IsClean())
	assert.Equal(t, 4, report.ProductsChecked)
	require.Len(t, report.Discrepancies, 3)
	assert.Equal(t, DiscrepancyStockMismatch, report.Discrepancies[0].Type)
	assert.True(t, report.Discrepancies[0].Difference.Equal(dec("2")))
	assert.Equal(t, DiscrepancyBatchFlag, report.Discrepancies[1].Type)
	assert.Equal(t, "D", report.Discrepancies[2].SKU)
	assert.Equal(t, DiscrepancyVirtualStockDrift, report.Discrepancies[2].Type)
	assert.True(t, report.Discrepancies[2].Expected.Equal(dec("85")))
}
