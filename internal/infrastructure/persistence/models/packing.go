package models

import (
	"time"

	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PackingOrderModel is the persistence model for the packing Order aggregate
type PackingOrderModel struct {
	TenantAggregateModel
	OrderNumber       string `gorm:"type:varchar(50);not null;uniqueIndex:idx_packing_orders_tenant_number,priority:2"`
	CustomerReference string `gorm:"type:varchar(200)"`
	Status            string `gorm:"type:varchar(30);not null;index"`
	ApprovedAt        *time.Time
	PackingStartedAt  *time.Time
	ReadyAt           *time.Time
	DeliveredAt       *time.Time
	CancelledAt       *time.Time
	CancelReason      string                  `gorm:"type:text"`
	Items             []PackingOrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (PackingOrderModel) TableName() string {
	return "packing_orders"
}

// ToDomain converts the model to a domain Order
func (m *PackingOrderModel) ToDomain() *packing.Order {
	o := &packing.Order{
		TenantAggregateRoot: m.ToTenantAggregateRoot(),
		OrderNumber:         m.OrderNumber,
		CustomerReference:   m.CustomerReference,
		Status:              packing.OrderStatus(m.Status),
		ApprovedAt:          m.ApprovedAt,
		PackingStartedAt:    m.PackingStartedAt,
		ReadyAt:             m.ReadyAt,
		DeliveredAt:         m.DeliveredAt,
		CancelledAt:         m.CancelledAt,
		CancelReason:        m.CancelReason,
		Items:               make([]packing.OrderItem, len(m.Items)),
	}
	for i := range m.Items {
		o.Items[i] = m.Items[i].ToDomain()
	}
	return o
}

// PackingOrderModelFromDomain creates a model from a domain Order
func PackingOrderModelFromDomain(o *packing.Order) *PackingOrderModel {
	m := &PackingOrderModel{
		OrderNumber:       o.OrderNumber,
		CustomerReference: o.CustomerReference,
		Status:            string(o.Status),
		ApprovedAt:        o.ApprovedAt,
		PackingStartedAt:  o.PackingStartedAt,
		ReadyAt:           o.ReadyAt,
		DeliveredAt:       o.DeliveredAt,
		CancelledAt:       o.CancelledAt,
		CancelReason:      o.CancelReason,
		Items:             make([]PackingOrderItemModel, len(o.Items)),
	}
	m.FromDomainTenantAggregateRoot(o.TenantAggregateRoot)
	for i, item := range o.Items {
		m.Items[i] = PackingOrderItemModelFromDomain(item)
	}
	return m
}

// PackingOrderItemModel is one product line of a packing order
type PackingOrderItemModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID      uuid.UUID       `gorm:"type:uuid;not null"`
	ProductSKU     string          `gorm:"type:varchar(64);not null"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PackedQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PackingOrderItemModel) TableName() string {
	return "packing_order_items"
}

// ToDomain converts the model to a domain OrderItem
func (m *PackingOrderItemModel) ToDomain() packing.OrderItem {
	return packing.OrderItem{
		ID:             m.ID,
		OrderID:        m.OrderID,
		ProductID:      m.ProductID,
		ProductSKU:     m.ProductSKU,
		Quantity:       m.Quantity,
		PackedQuantity: m.PackedQuantity,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// PackingOrderItemModelFromDomain creates a model from a domain OrderItem
func PackingOrderItemModelFromDomain(i packing.OrderItem) PackingOrderItemModel {
	return PackingOrderItemModel{
		ID:             i.ID,
		OrderID:        i.OrderID,
		ProductID:      i.ProductID,
		ProductSKU:     i.ProductSKU,
		Quantity:       i.Quantity,
		PackedQuantity: i.PackedQuantity,
		CreatedAt:      i.CreatedAt,
		UpdatedAt:      i.UpdatedAt,
	}
}
