package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"packmate/server/internal/ordertable"
)

// Имена маркетплейсов
const (
	NameWB   = "wb"
	NameOzon = "ozon"
)

// ErrAlreadyAttached возвращается на 409 от эндпоинтов прикрепления:
// код маркировки или заказ уже привязан. Для вызывающего это успех,
// локальное состояние продвигается так же, как при 200.
var ErrAlreadyAttached = errors.New("already attached")

// ErrNotFound возвращается на 404 от API маркетплейса
var ErrNotFound = errors.New("not found")

// RemoteOrder — строка заказа в ответе API маркетплейса, уже приведенная
// к общему виду. Исходные JSON-контракты площадок остаются внутри клиентов.
type RemoteOrder struct {
	OrderID       string
	ShipmentID    string // Номер отправления Ozon; для WB пусто
	VendorArticle string
	Size          string
	Brand         string
	SKU           int64
	Quantity      int
	Price         decimal.Decimal
	Status        string
	SubStatus     string
	IsExpress     bool
	Barcodes      []string // Штрихкоды площадки (для обогащения из каталога)
	CreatedAt     time.Time
}

// StatusInfo — результат запроса статуса по одному заказу
type StatusInfo struct {
	Status    string
	SubStatus string
	Price     decimal.Decimal
}

// Supply — поставка (партия отгрузки) на стороне маркетплейса
type Supply struct {
	ID     string
	Name   string
	Closed bool
}

// FinalizeItem — позиция в запросе финализации отправления
type FinalizeItem struct {
	SKU      int64
	Quantity int
}

// FinalizeRequest — запрос "пометить собранным" / "передать на отгрузку".
// WB: OrderID + SupplyID. Ozon: ShipmentID + полный список позиций отправления.
type FinalizeRequest struct {
	OrderID    string
	ShipmentID string
	SupplyID   string
	Items      []FinalizeItem
}

// AttachMarkingRequest — привязка кода маркировки к заказу/отправлению
type AttachMarkingRequest struct {
	OrderID    string
	ShipmentID string
	SKU        int64
	Codes      []string
}

// Client — операции удаленного API маркетплейса. Все вызовы синхронные,
// с ограниченным таймаутом на HTTP-клиенте: зависший сетевой вызов не
// должен блокировать конвейер сканирования дольше таймаута.
type Client interface {
	ListOrders(ctx context.Context) ([]RemoteOrder, error)
	GetStatuses(ctx context.Context, orderIDs []string) (map[string]StatusInfo, error)
	Finalize(ctx context.Context, req FinalizeRequest) error
	AttachMarking(ctx context.Context, req AttachMarkingRequest) error
	GetLabel(ctx context.Context, id string) ([]byte, error)
	CreateSupply(ctx context.Context, name string) (string, error)
	ListSupplies(ctx context.Context) ([]Supply, error)
	AttachToSupply(ctx context.Context, orderID, supplyID string) error
	CloseSupply(ctx context.Context, supplyID string) error
}

// Adapter параметризует общий конвейер сборки особенностями площадки.
// Один и тот же state machine обслуживает WB (заказ = одна строка) и
// Ozon (отправление из нескольких строк), различия вынесены сюда.
type Adapter interface {
	Client

	Name() string

	// RowKey — ключ дедупликации при merge свежезагруженных заказов:
	// shipment_id+sku для Ozon, order_id для WB
	RowKey(r *ordertable.Row) string

	// SyncID — идентификатор строки для запроса статуса:
	// номер заказа для WB, номер отправления для Ozon
	SyncID(r *ordertable.Row) string

	// AwaitingStatus — статус, выставляемый строке после успешной финализации
	AwaitingStatus() string

	// LabelFormat — формат этикетки площадки ('png' | 'pdf')
	LabelFormat() string

	// Terminal — статусы, в которых строка не участвует в подборе по штрихкоду
	Terminal() map[string]bool

	// RequiresSupply — нужна ли активная поставка для финализации (WB)
	RequiresSupply() bool
}

// RowFromRemote переводит строку ответа API во внутреннюю строку таблицы.
// Для WB (order-centric) ShipmentID заполняется номером заказа, чтобы
// группировка строк отправления работала одинаково для обеих площадок.
func RowFromRemote(o RemoteOrder, marketplaceName string) ordertable.Row {
	shipmentID := o.ShipmentID
	if shipmentID == "" {
		shipmentID = o.OrderID
	}
	return ordertable.Row{
		OrderID:          o.OrderID,
		ShipmentID:       shipmentID,
		VendorArticle:    o.VendorArticle,
		Size:             o.Size,
		Brand:            o.Brand,
		SKU:              o.SKU,
		Quantity:         o.Quantity,
		Price:            o.Price,
		OrderStatus:      o.Status,
		SubStatus:        o.SubStatus,
		IsExpress:        o.IsExpress,
		MarkingCodes:     []string{},
		ProcessingStatus: ordertable.ProcessingUnprocessed,
		Marketplace:      marketplaceName,
		CreatedAt:        o.CreatedAt,
	}
}

// RowKeyWB — ключ строки WB (заказ-центричная модель)
func RowKeyWB(r *ordertable.Row) string {
	return r.OrderID
}

// RowKeyOzon — ключ строки Ozon (отправление + SKU)
func RowKeyOzon(r *ordertable.Row) string {
	return fmt.Sprintf("%s:%d", r.ShipmentID, r.SKU)
}
