package event

import (
	"testing"

	"github.com/erp/stockcore/internal/domain/inventory"
	"github.com/erp/stockcore/internal/domain/packing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSerializer_KnowsDomainEvents(t *testing.T) {
	s := NewEventSerializer()

	for _, eventType := range []string{
		inventory.EventTypeStockReceived,
		inventory.EventTypeStockConsumed,
		inventory.EventTypeStockAdjusted,
		inventory.EventTypeTransactionReversed,
		inventory.EventTypeSubproductRecalculated,
		packing.EventTypeOrderCreated,
		packing.EventTypeOrderApproved,
		packing.EventTypeOrderPackingStarted,
		packing.EventTypeOrderItemPacked,
		packing.EventTypeOrderReady,
		packing.EventTypeOrderDelivered,
		packing.EventTypeOrderCancelled,
	} {
		assert.True(t, s.IsRegistered(eventType), eventType)
	}
	assert.False(t, s.IsRegistered("inventory.stock.teleported"))
}

func TestEventSerializer_Deserialize(t *testing.T) {
	s := NewEventSerializer()
	tenantID := uuid.New()
	original := newAdjustedEvent(tenantID)

	data, err := s.Serialize(original)
	require.NoError(t, err)

	decoded, err := s.Deserialize(inventory.EventTypeStockAdjusted, data)
	require.NoError(t, err)

	adjusted, ok := decoded.(*inventory.StockAdjustedEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), adjusted.EventID())
	assert.Equal(t, tenantID, adjusted.TenantID())
	assert.Equal(t, original.ProductID, adjusted.AggregateID())
	assert.True(t, original.Delta.Equal(adjusted.Delta))
	assert.Equal(t, "spoiled", adjusted.Reason)
}

func TestEventSerializer_DeserializeErrors(t *testing.T) {
	s := NewEventSerializer()

	_, err := s.Deserialize("unknown.event", []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")

	_, err = s.Deserialize(inventory.EventTypeStockAdjusted, []byte(`{not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal")
}
