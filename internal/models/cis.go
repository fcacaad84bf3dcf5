package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Статусы жизненного цикла кода маркировки
const (
	CISStatusShipped  = "shipped"  // Код отгружен покупателю
	CISStatusRedeemed = "redeemed" // Заказ выкуплен
	CISStatusReturned = "returned" // Заказ возвращен
)

// CISRecord представляет один выданный код маркировки (Честный Знак).
// Первичный ключ — сам код: коды глобально уникальны, повторная запись
// того же кода для другого заказа перезаписывает строку (upsert), это не ошибка.
type CISRecord struct {
	Code          string          `json:"code" gorm:"type:text;primaryKey"`
	ShipmentID    string          `json:"shipment_id" gorm:"type:varchar(64);index"`
	OrderID       string          `json:"order_id" gorm:"type:varchar(64);index"`
	Price         decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	SKU           int64           `json:"sku"`
	VendorArticle string          `json:"vendor_article" gorm:"type:varchar(128)"`
	Size          string          `json:"size" gorm:"type:varchar(32)"`
	Marketplace   string          `json:"marketplace" gorm:"type:varchar(16);index"` // 'wb' | 'ozon'
	Status        string          `json:"status" gorm:"type:varchar(16);default:'shipped';index"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (CISRecord) TableName() string {
	return "cis_records"
}
