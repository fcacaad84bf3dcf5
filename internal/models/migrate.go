package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate создает таблицы в БД
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&CatalogEntry{},
		&CISRecord{},
		&SupplyRecord{},
	)
	if err != nil {
		// Для существующих таблиц gorm может ругаться на несовместимые
		// изменения типов, продолжаем работу
		log.Printf("⚠️ AutoMigrate для существующих таблиц: %v", err)
		return err
	}

	log.Println("✅ Таблицы каталога, кодов маркировки и поставок готовы")
	return nil
}
