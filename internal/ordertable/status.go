package ordertable

// Tag — классификация строки для подсветки в интерфейсе и для
// предиката готовности при финализации отправления
type Tag string

const (
	TagCollected  Tag = "collected"  // Собрано и напечатано
	TagConfirmed  Tag = "confirmed"  // Подтверждено маркетплейсом, ждет отгрузки
	TagDelivering Tag = "delivering" // Передано в доставку
	TagFound      Tag = "found"      // Штрихкод привязан, идет набор кодов
	TagMissing    Tag = "missing"    // Штрихкод еще не привязан
	TagExpress    Tag = "express"    // Срочный заказ, собирается вне очереди
)

// Статусы маркетплейсов, означающие "передано в доставку" и дальше
var deliveringStatuses = map[string]bool{
	"complete":           true, // WB: выдан покупателю
	"deliver":            true, // WB: в доставке
	"delivering":         true, // Ozon
	"delivered":          true, // Ozon
	"driver_pickup":      true, // Ozon: у водителя
	"cancelled":          true, // обе площадки
	"cancel":             true, // WB
	"declined_by_client": true, // WB: отказ клиента
}

// Статусы "подтверждено, ожидает отгрузки"
var confirmedStatuses = map[string]bool{
	"confirm":           true, // WB: на сборке
	"awaiting_deliver":  true, // Ozon: ожидает отгрузки
	"awaiting_delivery": true,
}

// StatusTag возвращает классификацию строки. Чистая функция без побочных
// эффектов: тот же вход — тот же тег.
func StatusTag(r *Row) Tag {
	switch {
	case deliveringStatuses[r.OrderStatus]:
		return TagDelivering
	case r.ProcessingStatus == ProcessingProcessed:
		return TagCollected
	case confirmedStatuses[r.OrderStatus]:
		return TagConfirmed
	case r.IsExpress:
		return TagExpress
	case r.Barcode != "":
		return TagFound
	default:
		return TagMissing
	}
}

// TerminalStatuses возвращает набор статусов, в которых строка больше
// не участвует в подборе по штрихкоду
func TerminalStatuses() map[string]bool {
	result := make(map[string]bool, len(deliveringStatuses))
	for k, v := range deliveringStatuses {
		result[k] = v
	}
	return result
}
