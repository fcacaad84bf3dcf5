package models

import (
	"time"
)

// SupplyRecord представляет локальное зеркало поставки маркетплейса.
// ID назначается маркетплейсом при создании поставки.
// Закрытие поставки ("передать в доставку") необратимо: после него
// прикрепление заказов невозможно.
type SupplyRecord struct {
	ID          string     `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name        string     `json:"name" gorm:"type:varchar(255)"`
	Marketplace string     `json:"marketplace" gorm:"type:varchar(16);index"` // 'wb' | 'ozon'
	Closed      bool       `json:"closed" gorm:"default:false;index"`
	ClosedAt    *time.Time `json:"closed_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (SupplyRecord) TableName() string {
	return "supply_records"
}
