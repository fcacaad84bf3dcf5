package ordertable

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы локальной обработки строки
const (
	ProcessingUnprocessed = "unprocessed"
	ProcessingProcessed   = "processed"
)

// Row представляет одну позицию заказа (одну строку сборочного задания).
// Для WB заказ и есть строка; для Ozon одно отправление (posting) может
// содержать несколько строк с общим ShipmentID.
type Row struct {
	ID               int             `json:"id"` // Стабильный идентификатор строки до перезагрузки таблицы
	OrderID          string          `json:"order_id"`
	ShipmentID       string          `json:"shipment_id"` // Номер отправления Ozon; для WB пусто
	VendorArticle    string          `json:"vendor_article"`
	Size             string          `json:"size"`
	Brand            string          `json:"brand"`
	Barcode          string          `json:"barcode"` // Внутренний штрихкод, пусто до резолва сканом
	MarkingCodes     []string        `json:"marking_codes"`
	Quantity         int             `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	SKU              int64           `json:"sku"`
	OrderStatus      string          `json:"order_status"`
	SubStatus        string          `json:"sub_status"`
	ProcessingStatus string          `json:"processing_status"`
	SupplyID         string          `json:"supply_id"`
	Marketplace      string          `json:"marketplace"` // 'wb' | 'ozon'
	IsExpress        bool            `json:"is_express"`
	CreatedAt        time.Time       `json:"created_at"`
}

// MarkingComplete сообщает, набрано ли нужное количество кодов маркировки
func (r *Row) MarkingComplete() bool {
	return len(r.MarkingCodes) >= r.Quantity
}

// Table — упорядоченная коллекция строк заказов. Единственная общая
// изменяемая структура: все компоненты читают и пишут через нее.
// Сама таблица не потокобезопасна, ей владеет сервис сборки и
// сериализует доступ.
type Table struct {
	rows   []*Row
	nextID int
}

// New создает пустую таблицу заказов
func New() *Table {
	return &Table{nextID: 1}
}

// Append добавляет строку и присваивает ей стабильный ID
func (t *Table) Append(row Row) *Row {
	row.ID = t.nextID
	t.nextID++
	if row.MarkingCodes == nil {
		row.MarkingCodes = []string{}
	}
	if row.ProcessingStatus == "" {
		row.ProcessingStatus = ProcessingUnprocessed
	}
	r := &row
	t.rows = append(t.rows, r)
	return r
}

// KeyFunc извлекает ключ дедупликации строки.
// Для Ozon это shipment_id+sku, для WB — только order_id.
type KeyFunc func(*Row) string

// MergeOrders вливает свежезагруженные строки. Строки, чей ключ уже есть
// в таблице, отбрасываются: локальные правки (штрихкод, коды маркировки)
// существующих строк никогда не затираются. Возвращает число добавленных.
// Повторный merge той же партии ничего не добавляет.
func (t *Table) MergeOrders(newRows []Row, keyFn KeyFunc) int {
	existing := make(map[string]bool, len(t.rows))
	for _, r := range t.rows {
		existing[keyFn(r)] = true
	}

	added := 0
	for i := range newRows {
		key := keyFn(&newRows[i])
		if existing[key] {
			continue
		}
		existing[key] = true
		t.Append(newRows[i])
		added++
	}
	return added
}

// FindByBarcode возвращает первую необработанную строку с этим штрихкодом.
// Повторяющиеся штрихкоды разрешаются в порядке таблицы, без бизнес-приоритета.
// Строки в терминальных статусах (отмена, доставка) пропускаются.
func (t *Table) FindByBarcode(barcode string, terminal map[string]bool) (*Row, bool) {
	if barcode == "" {
		return nil, false
	}
	for _, r := range t.rows {
		if r.Barcode != barcode {
			continue
		}
		if r.ProcessingStatus != ProcessingUnprocessed {
			continue
		}
		if terminal != nil && terminal[r.OrderStatus] {
			continue
		}
		return r, true
	}
	return nil, false
}

// FindByID возвращает строку по стабильному ID
func (t *Table) FindByID(id int) (*Row, bool) {
	for _, r := range t.rows {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// FindByOrderID возвращает первую строку с данным order_id
func (t *Table) FindByOrderID(orderID string) (*Row, bool) {
	for _, r := range t.rows {
		if r.OrderID == orderID {
			return r, true
		}
	}
	return nil, false
}

// RowsByShipment возвращает все строки одного отправления
func (t *Table) RowsByShipment(shipmentID string) []*Row {
	var result []*Row
	for _, r := range t.rows {
		if r.ShipmentID == shipmentID {
			result = append(result, r)
		}
	}
	return result
}

// RowsBySupply возвращает все строки, прикрепленные к поставке
func (t *Table) RowsBySupply(supplyID string) []*Row {
	var result []*Row
	for _, r := range t.rows {
		if r.SupplyID == supplyID {
			result = append(result, r)
		}
	}
	return result
}

// SiblingsComplete проверяет, что у всех строк отправления набрано
// полное количество кодов маркировки. Отправление с недобранными
// строками нельзя передавать маркетплейсу — частичная отгрузка запрещена.
func (t *Table) SiblingsComplete(shipmentID string) bool {
	for _, r := range t.rows {
		if r.ShipmentID != shipmentID {
			continue
		}
		if !r.MarkingComplete() {
			return false
		}
	}
	return true
}

// Delete удаляет строку по ID. Строки удаляются только явным действием
// оператора или полной перезагрузкой таблицы, никогда неявно
func (t *Table) Delete(id int) bool {
	for i, r := range t.rows {
		if r.ID == id {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return true
		}
	}
	return false
}

// Clear полностью очищает таблицу (перед перезагрузкой)
func (t *Table) Clear() {
	t.rows = nil
}

// Rows возвращает все строки в порядке таблицы
func (t *Table) Rows() []*Row {
	return t.rows
}

// Len возвращает число строк
func (t *Table) Len() int {
	return len(t.rows)
}
