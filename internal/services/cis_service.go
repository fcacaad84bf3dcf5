package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"packmate/server/internal/models"
)

// CISService управляет хранилищем кодов маркировки (Честный Знак).
// Коды живут независимо от таблицы заказов: аудит и экспорт не должны
// зависеть от перезагрузки интерактивной таблицы.
type CISService struct {
	db *gorm.DB
}

// NewCISService создает новый экземпляр CISService
func NewCISService(db *gorm.DB) *CISService {
	return &CISService{db: db}
}

// Upsert записывает код маркировки. Первичный ключ — сам код:
// повторная запись того же кода перезаписывает строку, это не ошибка
func (s *CISService) Upsert(record *models.CISRecord) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"shipment_id", "order_id", "price", "sku", "vendor_article", "size", "marketplace", "status",
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("CIS upsert failed: %w", err)
	}
	return nil
}

// ByDateRange возвращает коды, выданные в интервале дат (для экспорта)
func (s *CISService) ByDateRange(from, to time.Time) ([]models.CISRecord, error) {
	var records []models.CISRecord
	err := s.db.Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("CIS range query failed: %w", err)
	}
	return records, nil
}

// ByShipment возвращает коды одного отправления
func (s *CISService) ByShipment(shipmentID string) ([]models.CISRecord, error) {
	var records []models.CISRecord
	if err := s.db.Where("shipment_id = ?", shipmentID).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("CIS query failed: %w", err)
	}
	return records, nil
}

// DeleteByCode удаляет один код
func (s *CISService) DeleteByCode(code string) error {
	if err := s.db.Delete(&models.CISRecord{}, "code = ?", code).Error; err != nil {
		return fmt.Errorf("CIS delete failed: %w", err)
	}
	return nil
}

// DeleteByShipment удаляет все коды отправления ("очистить КИЗы").
// Единственный массовый способ удаления кодов, только по явному действию
func (s *CISService) DeleteByShipment(shipmentID string) (int64, error) {
	result := s.db.Delete(&models.CISRecord{}, "shipment_id = ?", shipmentID)
	if result.Error != nil {
		return 0, fmt.Errorf("CIS delete failed: %w", result.Error)
	}
	log.Printf("🧹 КИЗы отправления %s очищены (%d шт)", shipmentID, result.RowsAffected)
	return result.RowsAffected, nil
}

// Статусы заказа маркетплейса, означающие выкуп и возврат
var redeemedOrderStatuses = map[string]bool{
	"complete":  true,
	"delivered": true,
}

var returnedOrderStatuses = map[string]bool{
	"cancel":             true,
	"cancelled":          true,
	"declined_by_client": true,
}

// ReconcileStatuses сверяет жизненный цикл кодов с актуальными статусами
// заказов: выкупленные помечаются redeemed, возвращенные — returned.
// Ключ карты — идентификатор синхронизации площадки: номер заказа (WB)
// или номер отправления (Ozon). Внеполосная операция, запускается
// отдельно от конвейера скана
func (s *CISService) ReconcileStatuses(orderStatuses map[string]string) (int, error) {
	updated := 0
	for syncID, status := range orderStatuses {
		var target string
		switch {
		case redeemedOrderStatuses[status]:
			target = models.CISStatusRedeemed
		case returnedOrderStatuses[status]:
			target = models.CISStatusReturned
		default:
			continue
		}

		result := s.db.Model(&models.CISRecord{}).
			Where("(order_id = ? OR shipment_id = ?) AND status <> ?", syncID, syncID, target).
			Update("status", target)
		if result.Error != nil {
			log.Printf("⚠️ КИЗ: ошибка сверки статуса заказа %s: %v", syncID, result.Error)
			continue
		}
		updated += int(result.RowsAffected)
	}
	if updated > 0 {
		log.Printf("🔄 КИЗ: обновлен жизненный цикл %d кодов", updated)
	}
	return updated, nil
}
