package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := map[string]string{
		"":                    "DESC",
		"asc":                 "ASC",
		"  ASC ":              "ASC",
		"desc":                "DESC",
		"ascending":           "DESC",
		"ASC; DROP TABLE x--": "DESC",
	}
	for in, want := range tests {
		assert.Equal(t, want, ValidateSortOrder(in), "input %q", in)
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name      string
		field     string
		whitelist map[string]bool
		want      string
	}{
		{"product sku", "sku", ProductSortFields, "sku"},
		{"product stock", " current_stock ", ProductSortFields, "current_stock"},
		{"packing status", "status", PackingOrderSortFields, "status"},
		{"packing field on products", "order_number", ProductSortFields, "created_at"},
		{"case sensitive", "SKU", ProductSortFields, "created_at"},
		{"empty", "", ProductSortFields, "created_at"},
		{"injection", "sku; DELETE FROM inventory_batches", ProductSortFields, "created_at"},
		{"subquery", "(SELECT cost_per_unit FROM inventory_batches)", ProductSortFields, "created_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSortField(tt.field, tt.whitelist, "created_at"))
		})
	}
}
