package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packmate/server/internal/marketplace"
	"packmate/server/internal/ordertable"
)

func TestMergeStatuses(t *testing.T) {
	rows := []*ordertable.Row{
		{OrderID: "1", OrderStatus: "new", Barcode: testBarcode, MarkingCodes: []string{"code-1"}},
		{OrderID: "2", OrderStatus: "confirm", Price: decimal.NewFromInt(100)},
		{OrderID: "3", OrderStatus: "confirm"},
	}
	statuses := map[string]marketplace.StatusInfo{
		"1": {Status: "confirm", SubStatus: "ready_for_pickup"},
		"2": {Status: "confirm", Price: decimal.NewFromInt(100)}, // ничего не меняется
		"4": {Status: "deliver"},                                 // строки нет в таблице
	}

	updated := mergeStatuses(rows, statuses, func(r *ordertable.Row) string { return r.OrderID })
	assert.Equal(t, 1, updated)

	// Обновились только удаленные поля, локальный прогресс цел
	assert.Equal(t, "confirm", rows[0].OrderStatus)
	assert.Equal(t, "ready_for_pickup", rows[0].SubStatus)
	assert.Equal(t, testBarcode, rows[0].Barcode)
	assert.Equal(t, []string{"code-1"}, rows[0].MarkingCodes)

	// Строка без ответа не тронута
	assert.Equal(t, "confirm", rows[2].OrderStatus)
}

func TestMergeStatusesPriceUpdate(t *testing.T) {
	rows := []*ordertable.Row{
		{OrderID: "1", Price: decimal.NewFromInt(100)},
	}
	statuses := map[string]marketplace.StatusInfo{
		"1": {Price: decimal.RequireFromString("149.50")},
	}

	updated := mergeStatuses(rows, statuses, func(r *ordertable.Row) string { return r.OrderID })
	assert.Equal(t, 1, updated)
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("149.50")))

	// Нулевая цена в ответе не затирает известную
	statuses["1"] = marketplace.StatusInfo{Price: decimal.Zero}
	assert.Equal(t, 0, mergeStatuses(rows, statuses, func(r *ordertable.Row) string { return r.OrderID }))
	assert.True(t, rows[0].Price.Equal(decimal.RequireFromString("149.50")))
}

func TestSyncStatusesEndToEnd(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.statuses = map[string]marketplace.StatusInfo{
		"100": {Status: "deliver"},
	}
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	syncSvc := NewSyncService(adapter, svc)
	updated, err := syncSvc.SyncStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	rows := svc.Snapshot()
	assert.Equal(t, "deliver", rows[0].OrderStatus)
	assert.Equal(t, ordertable.TagDelivering, ordertable.StatusTag(&rows[0]))
}
