package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packmate/server/internal/ordertable"
)

func TestCreateSupplyActivates(t *testing.T) {
	adapter := newFakeAdapter()
	assembly, _ := newTestAssembly(adapter)
	supply := NewSupplyService(adapter, assembly, nil)

	supplyID, err := supply.CreateSupply(context.Background(), "Понедельник")
	require.NoError(t, err)
	assert.Equal(t, "sup-1", supplyID)
	assert.Equal(t, "sup-1", assembly.ActiveSupply())
}

func TestAttachStampsRow(t *testing.T) {
	adapter := newFakeAdapter()
	assembly, _ := newTestAssembly(adapter)
	supply := NewSupplyService(adapter, assembly, nil)

	assembly.mu.Lock()
	assembly.table.Append(ordertable.Row{OrderID: "100"})
	assembly.mu.Unlock()

	require.NoError(t, supply.Attach(context.Background(), "100", "sup-9"))
	rows := assembly.Snapshot()
	assert.Equal(t, "sup-9", rows[0].SupplyID)
}

func TestCloseSupplyMovesRowsToDelivery(t *testing.T) {
	adapter := newFakeAdapter()
	assembly, _ := newTestAssembly(adapter)
	supply := NewSupplyService(adapter, assembly, nil)

	assembly.mu.Lock()
	assembly.table.Append(ordertable.Row{OrderID: "1", SupplyID: "sup-1", OrderStatus: "confirm"})
	assembly.table.Append(ordertable.Row{OrderID: "2", SupplyID: "sup-1", OrderStatus: "confirm"})
	assembly.mu.Unlock()
	assembly.SetActiveSupply("sup-1")

	require.NoError(t, supply.CloseSupply(context.Background(), "sup-1"))

	// Все строки поставки в доставке, активная поставка сброшена
	for _, row := range assembly.Snapshot() {
		assert.Equal(t, "deliver", row.OrderStatus)
		assert.Equal(t, ordertable.TagDelivering, ordertable.StatusTag(&row))
	}
	assert.Equal(t, "", assembly.ActiveSupply())
}
