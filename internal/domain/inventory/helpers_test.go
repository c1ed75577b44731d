package inventory

import (
	"time"

	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func newTestEntity() shared.BaseEntity {
	return shared.NewBaseEntity()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newTestPhysicalProduct(loss *decimal.Decimal) *Product {
	p, err := NewPhysicalProduct(uuid.New(), "BEEF-01", "Beef carcass", loss)
	if err != nil {
		panic(err)
	}
	return p
}

func orderRef() Reference {
	return OrderLineReference(uuid.New(), uuid.New())
}

var snapshotTime = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
