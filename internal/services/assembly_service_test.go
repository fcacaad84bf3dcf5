package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"packmate/server/internal/marketplace"
	"packmate/server/internal/ordertable"
)

const (
	testBarcode = "4006381333931"
)

func testMarkingCode(serial string) string {
	return "0104606203090990" + "21" + serial + "91" + "EE10" + "92" + strings.Repeat("A", 44)
}

// fakeAdapter — тестовый адаптер площадки с управляемыми отказами
type fakeAdapter struct {
	name           string
	requiresSupply bool

	orders      []marketplace.RemoteOrder
	statuses    map[string]marketplace.StatusInfo
	attachErr   error
	finalizeErr error
	labelErr    error

	attachCalls   []marketplace.AttachMarkingRequest
	finalizeCalls []marketplace.FinalizeRequest
	labelCalls    []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{name: "fake"}
}

func (f *fakeAdapter) ListOrders(ctx context.Context) ([]marketplace.RemoteOrder, error) {
	return f.orders, nil
}

func (f *fakeAdapter) GetStatuses(ctx context.Context, orderIDs []string) (map[string]marketplace.StatusInfo, error) {
	result := make(map[string]marketplace.StatusInfo, len(orderIDs))
	for _, id := range orderIDs {
		if info, ok := f.statuses[id]; ok {
			result[id] = info
		}
	}
	return result, nil
}

func (f *fakeAdapter) Finalize(ctx context.Context, req marketplace.FinalizeRequest) error {
	f.finalizeCalls = append(f.finalizeCalls, req)
	return f.finalizeErr
}

func (f *fakeAdapter) AttachMarking(ctx context.Context, req marketplace.AttachMarkingRequest) error {
	f.attachCalls = append(f.attachCalls, req)
	return f.attachErr
}

func (f *fakeAdapter) GetLabel(ctx context.Context, id string) ([]byte, error) {
	f.labelCalls = append(f.labelCalls, id)
	if f.labelErr != nil {
		return nil, f.labelErr
	}
	return []byte("label-" + id), nil
}

func (f *fakeAdapter) CreateSupply(ctx context.Context, name string) (string, error) {
	return "sup-1", nil
}

func (f *fakeAdapter) ListSupplies(ctx context.Context) ([]marketplace.Supply, error) {
	return nil, nil
}

func (f *fakeAdapter) AttachToSupply(ctx context.Context, orderID, supplyID string) error {
	return nil
}

func (f *fakeAdapter) CloseSupply(ctx context.Context, supplyID string) error {
	return nil
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) RowKey(r *ordertable.Row) string { return r.OrderID }

func (f *fakeAdapter) SyncID(r *ordertable.Row) string { return r.OrderID }

func (f *fakeAdapter) AwaitingStatus() string { return "confirm" }

func (f *fakeAdapter) LabelFormat() string { return "png" }

func (f *fakeAdapter) Terminal() map[string]bool { return ordertable.TerminalStatuses() }

func (f *fakeAdapter) RequiresSupply() bool { return f.requiresSupply }

// fakePrinter считает напечатанные этикетки
type fakePrinter struct {
	printed []string
	err     error
}

func (p *fakePrinter) Print(label []byte, format string) error {
	if p.err != nil {
		return p.err
	}
	p.printed = append(p.printed, string(label))
	return nil
}

func newTestAssembly(adapter *fakeAdapter) (*AssemblyService, *fakePrinter) {
	prn := &fakePrinter{}
	return NewAssemblyService(adapter, nil, nil, prn), prn
}

// loadRow кладет в таблицу одну строку с привязанным штрихкодом
func loadRow(t *testing.T, svc *AssemblyService, adapter *fakeAdapter, orderID string, qty int) {
	t.Helper()
	adapter.orders = []marketplace.RemoteOrder{
		{OrderID: orderID, VendorArticle: "ART-1", Size: "M", SKU: 101, Quantity: qty, Status: "new"},
	}
	added, err := svc.LoadOrders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, added)
}

func scanBarcode(t *testing.T, svc *AssemblyService) *ScanResult {
	t.Helper()
	// Строки без штрихкода резолвятся первым сканом после ручной привязки:
	// в тестах штрихкод вписывается напрямую
	rows := svc.Snapshot()
	require.NotEmpty(t, rows)
	svc.mu.Lock()
	for _, r := range svc.table.Rows() {
		if r.Barcode == "" && r.ProcessingStatus == ordertable.ProcessingUnprocessed {
			r.Barcode = testBarcode
		}
	}
	svc.mu.Unlock()

	result, err := svc.HandleScan(context.Background(), testBarcode)
	require.NoError(t, err)
	require.Equal(t, "barcode", result.Kind)
	return result
}

func TestScanHappyPath(t *testing.T) {
	adapter := newFakeAdapter()
	svc, prn := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	scanBarcode(t, svc)

	result, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)
	assert.Equal(t, "marking", result.Kind)
	assert.Equal(t, 1, result.CodesTotal)
	assert.True(t, result.Finalized)
	assert.True(t, result.Printed)
	assert.Empty(t, result.Warning)

	require.Len(t, adapter.attachCalls, 1)
	assert.Equal(t, []string{testMarkingCode("SER1")}, adapter.attachCalls[0].Codes)
	require.Len(t, adapter.finalizeCalls, 1)
	require.Len(t, prn.printed, 1)

	rows := svc.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, "confirm", rows[0].OrderStatus)
	assert.Equal(t, ordertable.ProcessingProcessed, rows[0].ProcessingStatus)
	assert.Equal(t, ordertable.TagCollected, ordertable.StatusTag(&rows[0]))
}

func TestScanUnknownBarcode(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	_, err := svc.HandleScan(context.Background(), testBarcode)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestMarkingWithoutSelectedRow(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	_, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	assert.ErrorIs(t, err, ErrNoRowSelected)
}

func TestUnrecognizedToken(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)

	_, err := svc.HandleScan(context.Background(), "not a code")
	assert.ErrorIs(t, err, ErrUnrecognizedToken)

	// Пустой Enter до привязки штрихкода — тоже не распознан
	_, err = svc.HandleScan(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnrecognizedToken)
}

func TestExtraMarkingCodeRejected(t *testing.T) {
	adapter := newFakeAdapter()
	// Финализация падает, чтобы строка с полным набором осталась выбранной
	adapter.finalizeErr = errors.New("api down")
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	scanBarcode(t, svc)
	_, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)

	// Лишний код: явный отказ без изменения списка
	_, err = svc.HandleScan(context.Background(), testMarkingCode("SER2"))
	assert.ErrorIs(t, err, ErrAlreadyComplete)

	rows := svc.Snapshot()
	assert.Equal(t, []string{testMarkingCode("SER1")}, rows[0].MarkingCodes)
	require.Len(t, adapter.attachCalls, 1)
}

func TestAttachConflictIsSuccess(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.attachErr = marketplace.ErrAlreadyAttached
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	scanBarcode(t, svc)
	result, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)

	// 409 — то же состояние, что и успех: без предупреждения, код в списке
	assert.Empty(t, result.Warning)
	assert.True(t, result.Finalized)
	assert.Equal(t, 1, result.CodesTotal)
}

func TestAttachFailureKeepsLocalProgress(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.attachErr = errors.New("timeout")
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 2)

	scanBarcode(t, svc)
	result, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)

	// Локальный прогресс не откатывается из-за сетевой ошибки
	assert.NotEmpty(t, result.Warning)
	assert.Equal(t, 1, result.CodesTotal)
	rows := svc.Snapshot()
	assert.Equal(t, []string{testMarkingCode("SER1")}, rows[0].MarkingCodes)
}

func TestFinalizeFailureBlocksTransition(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.finalizeErr = errors.New("api down")
	svc, prn := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	scanBarcode(t, svc)
	result, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)

	// Переход заблокирован: не подтвержден, не напечатан, статус прежний
	assert.False(t, result.Finalized)
	assert.NotEmpty(t, result.Warning)
	assert.Empty(t, prn.printed)
	rows := svc.Snapshot()
	assert.Equal(t, "new", rows[0].OrderStatus)
	assert.Equal(t, ordertable.ProcessingUnprocessed, rows[0].ProcessingStatus)

	// После восстановления API пустой Enter повторяет финализацию
	adapter.finalizeErr = nil
	result, err = svc.HandleScan(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "advance", result.Kind)
	assert.True(t, result.Finalized)
	assert.True(t, result.Printed)
	require.Len(t, prn.printed, 1)
}

func TestSiblingGateDelaysFinalize(t *testing.T) {
	adapter := newFakeAdapter()
	svc, prn := newTestAssembly(adapter)

	// Отправление из двух позиций (модель Ozon), штрихкоды уже в строках
	secondBarcode := "2000000000008"
	svc.mu.Lock()
	svc.table.Append(ordertable.Row{OrderID: "100", ShipmentID: "ship-1", SKU: 101, Quantity: 1, OrderStatus: "new", Barcode: testBarcode})
	svc.table.Append(ordertable.Row{OrderID: "100", ShipmentID: "ship-1", SKU: 102, Quantity: 1, OrderStatus: "new", Barcode: secondBarcode})
	svc.mu.Unlock()

	_, err := svc.HandleScan(context.Background(), testBarcode)
	require.NoError(t, err)
	result, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)

	// Сосед не добран: финализация отложена
	assert.False(t, result.Finalized)
	assert.Empty(t, adapter.finalizeCalls)
	assert.Empty(t, prn.printed)

	// Добираем вторую позицию
	_, err = svc.HandleScan(context.Background(), secondBarcode)
	require.NoError(t, err)
	result, err = svc.HandleScan(context.Background(), testMarkingCode("SER2"))
	require.NoError(t, err)

	assert.True(t, result.Finalized)
	assert.True(t, result.Printed)
	require.Len(t, adapter.finalizeCalls, 1)
	assert.Len(t, adapter.finalizeCalls[0].Items, 2)

	// Обе строки отправления переведены и помечены обработанными
	for _, row := range svc.Snapshot() {
		assert.Equal(t, "confirm", row.OrderStatus)
		assert.Equal(t, ordertable.ProcessingProcessed, row.ProcessingStatus)
	}
}

func TestForceFinalizeBypassesSiblingGate(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 2) // два кода, набран ноль

	result, err := svc.FinalizeShipment(context.Background(), "100", true)
	require.NoError(t, err)
	assert.True(t, result.Finalized)
	require.Len(t, adapter.finalizeCalls, 1)

	_, err = svc.FinalizeShipment(context.Background(), "no-such", true)
	assert.ErrorIs(t, err, ErrRowNotFound)
}

func TestSupplyRequiredForFinalize(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.requiresSupply = true
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	scanBarcode(t, svc)
	result, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)

	// Без активной поставки финализация не выполняется
	assert.False(t, result.Finalized)
	assert.Equal(t, ErrNoActiveSupply.Error(), result.Warning)
	assert.Empty(t, adapter.finalizeCalls)

	svc.SetActiveSupply("sup-7")
	result, err = svc.HandleScan(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, result.Finalized)
	require.Len(t, adapter.finalizeCalls, 1)
	assert.Equal(t, "sup-7", adapter.finalizeCalls[0].SupplyID)

	rows := svc.Snapshot()
	assert.Equal(t, "sup-7", rows[0].SupplyID)
}

func TestReprintIdempotent(t *testing.T) {
	adapter := newFakeAdapter()
	svc, prn := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	scanBarcode(t, svc)
	_, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)
	require.Len(t, prn.printed, 1)

	rows := svc.Snapshot()
	require.NoError(t, svc.Reprint(context.Background(), rows[0].ID))
	assert.Len(t, prn.printed, 2)

	// Повторная печать не меняет состояние строки
	after := svc.Snapshot()
	assert.Equal(t, ordertable.ProcessingProcessed, after[0].ProcessingStatus)
	assert.Equal(t, rows[0].OrderStatus, after[0].OrderStatus)

	assert.ErrorIs(t, svc.Reprint(context.Background(), 999), ErrRowNotFound)
}

func TestLabelFailureDoesNotBlockFinalize(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.labelErr = errors.New("label api down")
	svc, prn := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	scanBarcode(t, svc)
	result, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	require.NoError(t, err)

	// Финализация прошла, печать — нет; строка осталась необработанной
	assert.True(t, result.Finalized)
	assert.False(t, result.Printed)
	assert.Empty(t, prn.printed)
	rows := svc.Snapshot()
	assert.Equal(t, "confirm", rows[0].OrderStatus)
	assert.Equal(t, ordertable.ProcessingUnprocessed, rows[0].ProcessingStatus)

	// Этикетка добирается перепечаткой
	adapter.labelErr = nil
	require.NoError(t, svc.Reprint(context.Background(), rows[0].ID))
	after := svc.Snapshot()
	assert.Equal(t, ordertable.ProcessingProcessed, after[0].ProcessingStatus)
}

func TestLoadOrdersIdempotent(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	added, err := svc.LoadOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Len(t, svc.Snapshot(), 1)
}

func TestMarkSupplyDelivered(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)

	svc.mu.Lock()
	svc.table.Append(ordertable.Row{OrderID: "1", SupplyID: "sup-1", OrderStatus: "confirm"})
	svc.table.Append(ordertable.Row{OrderID: "2", SupplyID: "sup-1", OrderStatus: "confirm"})
	svc.table.Append(ordertable.Row{OrderID: "3", SupplyID: "sup-2", OrderStatus: "confirm"})
	svc.mu.Unlock()
	svc.SetActiveSupply("sup-1")

	affected := svc.MarkSupplyDelivered("sup-1", "deliver")
	assert.Equal(t, 2, affected)
	assert.Equal(t, "", svc.ActiveSupply())

	for _, row := range svc.Snapshot() {
		if row.SupplyID == "sup-1" {
			assert.Equal(t, "deliver", row.OrderStatus)
		} else {
			assert.Equal(t, "confirm", row.OrderStatus)
		}
	}
}

func TestDeleteSelectedRowResetsMode(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 2)

	result := scanBarcode(t, svc)
	require.True(t, svc.DeleteRow(result.RowID))

	// Выбранная строка удалена: следующий код маркировки не к чему привязать
	_, err := svc.HandleScan(context.Background(), testMarkingCode("SER1"))
	assert.ErrorIs(t, err, ErrNoRowSelected)
}

func TestWhitespaceScanAdvancesBatch(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 2)

	scanBarcode(t, svc)

	// Пустой Enter от сканера приходит с пробелами: это сигнал
	// "кодов больше нет", а не код маркировки
	result, err := svc.HandleScan(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, "advance", result.Kind)

	rows := svc.Snapshot()
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].MarkingCodes)
	assert.Empty(t, adapter.attachCalls)
}

func TestBarcodeScanWithSeparators(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	svc.mu.Lock()
	for _, r := range svc.table.Rows() {
		r.Barcode = testBarcode
	}
	svc.mu.Unlock()

	// Сканер отдал штрихкод с дефисами: строка находится по каноническому
	// виду, дефисы в таблицу не попадают
	result, err := svc.HandleScan(context.Background(), "4006-381-333931")
	require.NoError(t, err)
	assert.Equal(t, "barcode", result.Kind)

	rows := svc.Snapshot()
	require.Len(t, rows, 1)
	assert.Equal(t, testBarcode, rows[0].Barcode)
}

func TestRefreshFromCatalogRunsOnDispatcher(t *testing.T) {
	adapter := newFakeAdapter()
	svc, _ := newTestAssembly(adapter)
	loadRow(t, svc, adapter, "100", 1)

	go svc.Run()
	defer svc.Stop()

	done := make(chan int, 1)
	svc.RefreshFromCatalog(func(updated int) { done <- updated })

	select {
	case updated := <-done:
		// Справочник не подключен, дозаполнять нечего
		assert.Equal(t, 0, updated)
	case <-time.After(2 * time.Second):
		t.Fatal("коллбек не дошел до диспетчера")
	}
}
