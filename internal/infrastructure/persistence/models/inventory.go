package models

import (
	"time"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the Product aggregate
type ProductModel struct {
	TenantAggregateModel
	SKU                     string              `gorm:"type:varchar(64);not null;uniqueIndex:idx_products_tenant_sku,priority:2"`
	Name                    string              `gorm:"type:varchar(200);not null"`
	Kind                    string              `gorm:"type:varchar(20);not null"`
	CurrentStock            decimal.Decimal     `gorm:"type:decimal(18,4);not null;default:0"`
	ParentProductID         *uuid.UUID          `gorm:"type:uuid;index"`
	LossPercentage          decimal.NullDecimal `gorm:"type:decimal(5,2)"`
	LastBatchSequence       int64               `gorm:"not null;default:0"`
	LastTransactionSequence int64               `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the model to a domain Product
func (m *ProductModel) ToDomain() *inventory.Product {
	p := &inventory.Product{
		TenantAggregateRoot:     m.ToTenantAggregateRoot(),
		SKU:                     m.SKU,
		Name:                    m.Name,
		Kind:                    inventory.ProductKind(m.Kind),
		CurrentStock:            m.CurrentStock,
		ParentProductID:         m.ParentProductID,
		LastBatchSequence:       m.LastBatchSequence,
		LastTransactionSequence: m.LastTransactionSequence,
	}
	if m.LossPercentage.Valid {
		loss := m.LossPercentage.Decimal
		p.LossPercentage = &loss
	}
	return p
}

// FromDomain populates the model from a domain Product
func (m *ProductModel) FromDomain(p *inventory.Product) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.SKU = p.SKU
	m.Name = p.Name
	m.Kind = string(p.Kind)
	m.CurrentStock = p.CurrentStock
	m.ParentProductID = p.ParentProductID
	m.LastBatchSequence = p.LastBatchSequence
	m.LastTransactionSequence = p.LastTransactionSequence
	m.LossPercentage = decimal.NullDecimal{}
	if p.LossPercentage != nil {
		m.LossPercentage = decimal.NewNullDecimal(*p.LossPercentage)
	}
}

// ProductModelFromDomain creates a new ProductModel from a domain Product
func ProductModelFromDomain(p *inventory.Product) *ProductModel {
	m := &ProductModel{}
	m.FromDomain(p)
	return m
}

// InventoryBatchModel is the persistence model for a cost lot
type InventoryBatchModel struct {
	BaseModel
	TenantID               uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID              uuid.UUID       `gorm:"type:uuid;not null;index:idx_batches_fifo,priority:1"`
	BatchNumber            string          `gorm:"type:varchar(100);not null"`
	Sequence               int64           `gorm:"not null;index:idx_batches_fifo,priority:3"`
	InitialQuantity        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	QuantityRemaining      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CostPerUnit            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReceivedAt             time.Time       `gorm:"not null;index:idx_batches_fifo,priority:2"`
	ExpiryDate             *time.Time
	IsConsumed             bool      `gorm:"not null;default:false"`
	CreatedByTransactionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	Version                int       `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (InventoryBatchModel) TableName() string {
	return "inventory_batches"
}

// ToDomain converts the model to a domain InventoryBatch
func (m *InventoryBatchModel) ToDomain() *inventory.InventoryBatch {
	return &inventory.InventoryBatch{
		BaseEntity:             m.BaseModel.ToDomain(),
		TenantID:               m.TenantID,
		ProductID:              m.ProductID,
		BatchNumber:            m.BatchNumber,
		Sequence:               m.Sequence,
		InitialQuantity:        m.InitialQuantity,
		QuantityRemaining:      m.QuantityRemaining,
		CostPerUnit:            m.CostPerUnit,
		ReceivedAt:             m.ReceivedAt,
		ExpiryDate:             m.ExpiryDate,
		IsConsumed:             m.IsConsumed,
		CreatedByTransactionID: m.CreatedByTransactionID,
		Version:                m.Version,
	}
}

// InventoryBatchModelFromDomain creates a model from a domain InventoryBatch
func InventoryBatchModelFromDomain(b *inventory.InventoryBatch) *InventoryBatchModel {
	m := &InventoryBatchModel{
		TenantID:               b.TenantID,
		ProductID:              b.ProductID,
		BatchNumber:            b.BatchNumber,
		Sequence:               b.Sequence,
		InitialQuantity:        b.InitialQuantity,
		QuantityRemaining:      b.QuantityRemaining,
		CostPerUnit:            b.CostPerUnit,
		ReceivedAt:             b.ReceivedAt,
		ExpiryDate:             b.ExpiryDate,
		IsConsumed:             b.IsConsumed,
		CreatedByTransactionID: b.CreatedByTransactionID,
		Version:                b.Version,
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	return m
}

// BatchConsumptionModel links a transaction to a lot it drew from
type BatchConsumptionModel struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primary_key"`
	TransactionID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID             uuid.UUID       `gorm:"type:uuid;not null;index"`
	Sequence            int             `gorm:"not null"`
	QuantityTaken       decimal.Decimal `gorm:"type:decimal(18,4);not null;check:chk_batch_consumptions_taken,quantity_taken <> 0"`
	QuantityReversed    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0;check:chk_batch_consumptions_reversed,quantity_reversed >= 0 AND (quantity_taken < 0 OR quantity_reversed <= quantity_taken)"`
	CostAtConsumption   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	SourceConsumptionID *uuid.UUID      `gorm:"type:uuid;check:chk_batch_consumptions_restoration,(quantity_taken > 0) = (source_consumption_id IS NULL)"`
	CreatedAt           time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BatchConsumptionModel) TableName() string {
	return "batch_consumptions"
}

// ToDomain converts the model to a domain BatchConsumption
func (m *BatchConsumptionModel) ToDomain() inventory.BatchConsumption {
	return inventory.BatchConsumption{
		ID:                  m.ID,
		TransactionID:       m.TransactionID,
		BatchID:             m.BatchID,
		Sequence:            m.Sequence,
		QuantityTaken:       m.QuantityTaken,
		QuantityReversed:    m.QuantityReversed,
		CostAtConsumption:   m.CostAtConsumption,
		SourceConsumptionID: m.SourceConsumptionID,
		CreatedAt:           m.CreatedAt,
	}
}

// BatchConsumptionModelFromDomain creates a model from a domain row
func BatchConsumptionModelFromDomain(c inventory.BatchConsumption) BatchConsumptionModel {
	return BatchConsumptionModel{
		ID:                  c.ID,
		TransactionID:       c.TransactionID,
		BatchID:             c.BatchID,
		Sequence:            c.Sequence,
		QuantityTaken:       c.QuantityTaken,
		QuantityReversed:    c.QuantityReversed,
		CostAtConsumption:   c.CostAtConsumption,
		SourceConsumptionID: c.SourceConsumptionID,
		CreatedAt:           c.CreatedAt,
	}
}

// InventoryTransactionModel is the persistence model for a ledger entry
type InventoryTransactionModel struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID              uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID             uuid.UUID       `gorm:"type:uuid;not null;index"`
	Sequence              int64           `gorm:"not null;default:0"`
	TransactionType       string          `gorm:"type:varchar(20);not null"`
	AdjustmentType        *string         `gorm:"type:varchar(30)"`
	Quantity              decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PreviousStock         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	NewStock              decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitCost              decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	ReferenceType         string          `gorm:"type:varchar(30);not null;index:idx_transactions_reference,priority:1"`
	ReferenceID           uuid.UUID       `gorm:"type:uuid;not null;index:idx_transactions_reference,priority:2"`
	ReferenceLineID       *uuid.UUID      `gorm:"type:uuid"`
	Reason                string          `gorm:"type:text"`
	ReversesTransactionID *uuid.UUID      `gorm:"type:uuid;index"`
	ReversedAt            *time.Time
	PerformedBy           *uuid.UUID              `gorm:"type:uuid"`
	CreatedAt             time.Time               `gorm:"not null;index"`
	Consumptions          []BatchConsumptionModel `gorm:"foreignKey:TransactionID;references:ID"`
}

// TableName returns the table name for GORM
func (InventoryTransactionModel) TableName() string {
	return "inventory_transactions"
}

// ToDomain converts the model to a domain InventoryTransaction
func (m *InventoryTransactionModel) ToDomain() *inventory.InventoryTransaction {
	tx := &inventory.InventoryTransaction{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		ProductID:             m.ProductID,
		Sequence:              m.Sequence,
		Type:                  inventory.TransactionType(m.TransactionType),
		Quantity:              m.Quantity,
		PreviousStock:         m.PreviousStock,
		NewStock:              m.NewStock,
		UnitCost:              m.UnitCost,
		ReferenceType:         inventory.ReferenceType(m.ReferenceType),
		ReferenceID:           m.ReferenceID,
		ReferenceLineID:       m.ReferenceLineID,
		Reason:                m.Reason,
		ReversesTransactionID: m.ReversesTransactionID,
		ReversedAt:            m.ReversedAt,
		PerformedBy:           m.PerformedBy,
		CreatedAt:             m.CreatedAt,
		Consumptions:          make([]inventory.BatchConsumption, len(m.Consumptions)),
	}
	if m.AdjustmentType != nil {
		adj := inventory.AdjustmentType(*m.AdjustmentType)
		tx.AdjustmentType = &adj
	}
	for i := range m.Consumptions {
		tx.Consumptions[i] = m.Consumptions[i].ToDomain()
	}
	return tx
}

// InventoryTransactionModelFromDomain creates a model from a domain
// transaction, consumption rows included
func InventoryTransactionModelFromDomain(t *inventory.InventoryTransaction) *InventoryTransactionModel {
	m := &InventoryTransactionModel{
		ID:                    t.ID,
		TenantID:              t.TenantID,
		ProductID:             t.ProductID,
		Sequence:              t.Sequence,
		TransactionType:       string(t.Type),
		Quantity:              t.Quantity,
		PreviousStock:         t.PreviousStock,
		NewStock:              t.NewStock,
		UnitCost:              t.UnitCost,
		ReferenceType:         string(t.ReferenceType),
		ReferenceID:           t.ReferenceID,
		ReferenceLineID:       t.ReferenceLineID,
		Reason:                t.Reason,
		ReversesTransactionID: t.ReversesTransactionID,
		ReversedAt:            t.ReversedAt,
		PerformedBy:           t.PerformedBy,
		CreatedAt:             t.CreatedAt,
		Consumptions:          make([]BatchConsumptionModel, len(t.Consumptions)),
	}
	if t.AdjustmentType != nil {
		adj := string(*t.AdjustmentType)
		m.AdjustmentType = &adj
	}
	for i, c := range t.Consumptions {
		m.Consumptions[i] = BatchConsumptionModelFromDomain(c)
	}
	return m
}

// StockModels lists every model of the stock tables, parents first
func StockModels() []any {
	return []any{
		&ProductModel{},
		&InventoryTransactionModel{},
		&InventoryBatchModel{},
		&BatchConsumptionModel{},
		&PackingOrderModel{},
		&PackingOrderItemModel{},
		&shared.OutboxEntry{},
	}
}
