package ordertable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyByOrderID(r *Row) string { return r.OrderID }

func TestAppendAssignsStableIDs(t *testing.T) {
	tbl := New()
	first := tbl.Append(Row{OrderID: "a"})
	second := tbl.Append(Row{OrderID: "b"})

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.NotNil(t, first.MarkingCodes)
	assert.Equal(t, ProcessingUnprocessed, first.ProcessingStatus)

	// ID не переиспользуются после удаления
	require.True(t, tbl.Delete(first.ID))
	third := tbl.Append(Row{OrderID: "c"})
	assert.Equal(t, 3, third.ID)
}

func TestMergeOrdersNeverClobbersLocalProgress(t *testing.T) {
	tbl := New()
	tbl.MergeOrders([]Row{{OrderID: "100"}, {OrderID: "200"}}, keyByOrderID)

	// Оператор привязал штрихкод и набрал код
	row, ok := tbl.FindByOrderID("100")
	require.True(t, ok)
	row.Barcode = "4006381333931"
	row.MarkingCodes = []string{"010460620309099021ABC"}

	// Повторная загрузка той же партии плюс один новый заказ
	added := tbl.MergeOrders([]Row{{OrderID: "100"}, {OrderID: "200"}, {OrderID: "300"}}, keyByOrderID)
	assert.Equal(t, 1, added)
	assert.Equal(t, 3, tbl.Len())

	row, ok = tbl.FindByOrderID("100")
	require.True(t, ok)
	assert.Equal(t, "4006381333931", row.Barcode)
	assert.Equal(t, []string{"010460620309099021ABC"}, row.MarkingCodes)
}

func TestMergeOrdersIdempotent(t *testing.T) {
	tbl := New()
	batch := []Row{{OrderID: "1"}, {OrderID: "2"}}
	assert.Equal(t, 2, tbl.MergeOrders(batch, keyByOrderID))
	assert.Equal(t, 0, tbl.MergeOrders(batch, keyByOrderID))
	assert.Equal(t, 2, tbl.Len())
}

func TestFindByBarcode(t *testing.T) {
	tbl := New()
	tbl.Append(Row{OrderID: "1", Barcode: "4006381333931", ProcessingStatus: ProcessingProcessed})
	tbl.Append(Row{OrderID: "2", Barcode: "4006381333931", OrderStatus: "cancel"})
	tbl.Append(Row{OrderID: "3", Barcode: "4006381333931"})
	tbl.Append(Row{OrderID: "4", Barcode: "4006381333931"})

	// Обработанные и отмененные строки пропускаются, берется первая живая
	row, ok := tbl.FindByBarcode("4006381333931", TerminalStatuses())
	require.True(t, ok)
	assert.Equal(t, "3", row.OrderID)

	_, ok = tbl.FindByBarcode("", nil)
	assert.False(t, ok)

	_, ok = tbl.FindByBarcode("0000000000000", nil)
	assert.False(t, ok)
}

func TestSiblingsComplete(t *testing.T) {
	tbl := New()
	tbl.Append(Row{ShipmentID: "s1", Quantity: 1, MarkingCodes: []string{"x"}})
	tbl.Append(Row{ShipmentID: "s1", Quantity: 2, MarkingCodes: []string{"y"}})
	tbl.Append(Row{ShipmentID: "s2", Quantity: 1, MarkingCodes: []string{"z"}})

	assert.False(t, tbl.SiblingsComplete("s1"))
	assert.True(t, tbl.SiblingsComplete("s2"))

	// Недостающий код добирается
	rows := tbl.RowsByShipment("s1")
	require.Len(t, rows, 2)
	rows[1].MarkingCodes = append(rows[1].MarkingCodes, "y2")
	assert.True(t, tbl.SiblingsComplete("s1"))

	// Пустое отправление считается полным
	assert.True(t, tbl.SiblingsComplete("no-such"))
}

func TestRowsBySupply(t *testing.T) {
	tbl := New()
	tbl.Append(Row{OrderID: "1", SupplyID: "sup-1"})
	tbl.Append(Row{OrderID: "2", SupplyID: "sup-2"})
	tbl.Append(Row{OrderID: "3", SupplyID: "sup-1"})

	assert.Len(t, tbl.RowsBySupply("sup-1"), 2)
	assert.Empty(t, tbl.RowsBySupply("sup-3"))
}

func TestStatusTag(t *testing.T) {
	tests := []struct {
		name string
		row  Row
		want Tag
	}{
		{"передано в доставку WB", Row{OrderStatus: "deliver"}, TagDelivering},
		{"передано в доставку Ozon", Row{OrderStatus: "delivering"}, TagDelivering},
		{"отмена приоритетнее обработки", Row{OrderStatus: "cancel", ProcessingStatus: ProcessingProcessed}, TagDelivering},
		{"собрано", Row{ProcessingStatus: ProcessingProcessed}, TagCollected},
		{"подтверждено WB", Row{OrderStatus: "confirm"}, TagConfirmed},
		{"подтверждено Ozon", Row{OrderStatus: "awaiting_deliver"}, TagConfirmed},
		{"срочный", Row{IsExpress: true, OrderStatus: "new"}, TagExpress},
		{"штрихкод привязан", Row{Barcode: "4006381333931"}, TagFound},
		{"штрихкод не привязан", Row{}, TagMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusTag(&tt.row))
		})
	}
}
