package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogEntry представляет карточку товара в локальном справочнике.
// Ключ товара — пара (артикул поставщика, размер), она уникальна в БД.
type CatalogEntry struct {
	ID            string `json:"id" gorm:"type:uuid;primaryKey"`
	VendorArticle string `json:"vendor_article" gorm:"type:varchar(128);not null;uniqueIndex:idx_catalog_article_size"`
	Size          string `json:"size" gorm:"type:varchar(32);not null;uniqueIndex:idx_catalog_article_size"`
	Brand         string `json:"brand" gorm:"type:varchar(255)"`
	SupplierName  string `json:"supplier_name" gorm:"type:varchar(255)"`
	// Внутренний штрихкод товара (EAN-13), заполняется при первом успешном скане
	Barcode string `json:"barcode" gorm:"type:varchar(32);index"`
	// Идентификаторы маркетплейсов
	OzonSKU     int64  `json:"ozon_sku" gorm:"index"`
	OzonBarcode string `json:"ozon_barcode" gorm:"type:varchar(64);index"`
	WBBarcode   string `json:"wb_barcode" gorm:"type:varchar(64);index"`
	// GTIN из кодов маркировки. Несколько значений хранятся через запятую:
	// записанный GTIN не перезаписывается, новые только дописываются
	GTIN      string         `json:"gtin" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName указывает имя таблицы
func (CatalogEntry) TableName() string {
	return "catalog_entries"
}

// BeforeCreate генерирует UUID
func (e *CatalogEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// AppendGTIN дописывает GTIN, если его еще нет в списке.
// Возвращает true, если поле изменилось.
func (e *CatalogEntry) AppendGTIN(gtin string) bool {
	gtin = strings.TrimSpace(gtin)
	if gtin == "" {
		return false
	}
	if e.GTIN == "" {
		e.GTIN = gtin
		return true
	}
	for _, existing := range strings.Split(e.GTIN, ",") {
		if strings.TrimSpace(existing) == gtin {
			return false
		}
	}
	e.GTIN = e.GTIN + "," + gtin
	return true
}

// GTINs возвращает список GTIN из строки через запятую
func (e *CatalogEntry) GTINs() []string {
	if e.GTIN == "" {
		return []string{}
	}
	parts := strings.Split(e.GTIN, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
