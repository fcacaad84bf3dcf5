package services

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"packmate/server/internal/models"
	"packmate/server/internal/ordertable"
)

// ErrCatalogEntryNotFound возвращается, когда карточки товара нет в справочнике
var ErrCatalogEntryNotFound = errors.New("catalog entry not found")

// CatalogService управляет локальным справочником товаров.
// Справочник — долгоживущая часть системы: каждый успешный скан
// уточняет его (двусторонняя синхронизация штрихкодов и GTIN).
type CatalogService struct {
	db *gorm.DB
}

// NewCatalogService создает новый экземпляр CatalogService
func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// FindByArticleSize ищет карточку по ключу (артикул, размер)
func (s *CatalogService) FindByArticleSize(vendorArticle, size string) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	err := s.db.Where("vendor_article = ? AND size = ?", vendorArticle, size).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCatalogEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	return &entry, nil
}

// FindByOzonSKU ищет карточку по SKU Ozon
func (s *CatalogService) FindByOzonSKU(sku int64) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	err := s.db.Where("ozon_sku = ?", sku).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCatalogEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	return &entry, nil
}

// FindByMarketplaceBarcode ищет карточку по штрихкоду площадки (WB или Ozon)
func (s *CatalogService) FindByMarketplaceBarcode(barcode string) (*models.CatalogEntry, error) {
	var entry models.CatalogEntry
	err := s.db.Where("wb_barcode = ? OR ozon_barcode = ?", barcode, barcode).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCatalogEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	return &entry, nil
}

// All возвращает весь справочник
func (s *CatalogService) All() ([]models.CatalogEntry, error) {
	var entries []models.CatalogEntry
	if err := s.db.Order("vendor_article, size").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("catalog read failed: %w", err)
	}
	return entries, nil
}

// SaveFromScan записывает привязку внутреннего штрихкода к товару.
// Если карточки (артикул, размер) нет — создается новая, иначе
// обновляется ее штрихкод. Каждый успешный скан улучшает справочник
func (s *CatalogService) SaveFromScan(row *ordertable.Row, barcode string) error {
	entry, err := s.FindByArticleSize(row.VendorArticle, row.Size)
	if errors.Is(err, ErrCatalogEntryNotFound) {
		entry = &models.CatalogEntry{
			VendorArticle: row.VendorArticle,
			Size:          row.Size,
			Brand:         row.Brand,
			Barcode:       barcode,
		}
		switch row.Marketplace {
		case "ozon":
			entry.OzonSKU = row.SKU
		case "wb":
			entry.WBBarcode = barcode
		}
		if err := s.db.Create(entry).Error; err != nil {
			return fmt.Errorf("catalog create failed: %w", err)
		}
		log.Printf("📒 Каталог: создана карточка %s/%s (штрихкод %s)", row.VendorArticle, row.Size, barcode)
		return nil
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"barcode": barcode}
	if row.Marketplace == "ozon" && entry.OzonSKU == 0 && row.SKU != 0 {
		updates["ozon_sku"] = row.SKU
	}
	if err := s.db.Model(entry).Updates(updates).Error; err != nil {
		return fmt.Errorf("catalog update failed: %w", err)
	}
	return nil
}

// MergeGTIN дописывает GTIN в карточку, если его там еще нет.
// Записанный GTIN никогда не перезаписывается — только дополняется
func (s *CatalogService) MergeGTIN(vendorArticle, size, gtin string) error {
	if gtin == "" {
		return nil
	}
	entry, err := s.FindByArticleSize(vendorArticle, size)
	if errors.Is(err, ErrCatalogEntryNotFound) {
		return nil // Нет карточки — GTIN записывать некуда
	}
	if err != nil {
		return err
	}
	if !entry.AppendGTIN(gtin) {
		return nil
	}
	if err := s.db.Model(entry).Update("gtin", entry.GTIN).Error; err != nil {
		return fmt.Errorf("catalog GTIN update failed: %w", err)
	}
	return nil
}

// EnrichRow заполняет строку заказа из справочника: внутренний штрихкод,
// бренд, артикул. Вызывается при merge свежезагруженных заказов,
// когда известны только идентификаторы маркетплейса
func (s *CatalogService) EnrichRow(row *ordertable.Row) {
	var entry *models.CatalogEntry
	var err error

	if row.VendorArticle != "" {
		entry, err = s.FindByArticleSize(row.VendorArticle, row.Size)
	} else {
		err = ErrCatalogEntryNotFound
	}
	if errors.Is(err, ErrCatalogEntryNotFound) && row.Marketplace == "ozon" && row.SKU != 0 {
		entry, err = s.FindByOzonSKU(row.SKU)
	}
	if err != nil {
		return // Нет совпадения — строка остается с пустым штрихкодом до скана
	}

	if row.Barcode == "" {
		row.Barcode = entry.Barcode
	}
	if row.Brand == "" {
		row.Brand = entry.Brand
	}
	if row.VendorArticle == "" {
		row.VendorArticle = entry.VendorArticle
		row.Size = entry.Size
	}
}

// EnrichByMarketplaceBarcode дозаполняет строку по штрихкоду площадки
func (s *CatalogService) EnrichByMarketplaceBarcode(row *ordertable.Row, mpBarcode string) {
	entry, err := s.FindByMarketplaceBarcode(mpBarcode)
	if err != nil {
		return
	}
	if row.Barcode == "" {
		row.Barcode = entry.Barcode
	}
	if row.Brand == "" {
		row.Brand = entry.Brand
	}
}

// BulkImport массово загружает карточки в справочник (upsert по ключу).
// Тяжелая операция: вызывается из фонового воркера, не из конвейера скана
func (s *CatalogService) BulkImport(entries []models.CatalogEntry) (int, error) {
	imported := 0
	for i := range entries {
		entry := &entries[i]
		if entry.VendorArticle == "" {
			continue
		}
		err := s.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "vendor_article"}, {Name: "size"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"brand", "supplier_name", "barcode", "ozon_sku", "ozon_barcode", "wb_barcode",
			}),
		}).Create(entry).Error
		if err != nil {
			log.Printf("⚠️ Каталог: ошибка импорта %s/%s: %v", entry.VendorArticle, entry.Size, err)
			continue
		}
		imported++
	}
	log.Printf("📒 Каталог: импортировано %d из %d карточек", imported, len(entries))
	return imported, nil
}
