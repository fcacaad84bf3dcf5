package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"packmate/server/internal/models"
	"packmate/server/internal/services"
)

// CatalogController управляет справочником товаров (артикул/размер ↔
// штрихкоды)
type CatalogController struct {
	catalog  *services.CatalogService
	registry Registry
}

func NewCatalogController(catalog *services.CatalogService, registry Registry) *CatalogController {
	return &CatalogController{catalog: catalog, registry: registry}
}

// GetCatalog возвращает весь справочник
func (cc *CatalogController) GetCatalog(c *gin.Context) {
	entries, err := cc.catalog.All()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   len(entries),
	})
}

// ImportCatalog принимает пакет записей справочника и загружает их
// в фоне: импорт в тысячи строк не должен держать HTTP запрос.
// Результат приходит в статусную ленту
func (cc *CatalogController) ImportCatalog(c *gin.Context) {
	var entries []models.CatalogEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "details": err.Error()})
		return
	}
	if len(entries) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty import"})
		return
	}

	go func() {
		imported, err := cc.catalog.BulkImport(entries)
		if err != nil {
			log.Printf("❌ Импорт справочника не удался: %v", err)
			StatusHub.BroadcastStatus("error", fmt.Sprintf("Импорт справочника не удался: %v", err))
			return
		}
		log.Printf("📚 Справочник: импортировано записей: %d", imported)
		StatusHub.BroadcastStatus("success", fmt.Sprintf("Справочник: импортировано записей: %d", imported))

		// Дозаполняем штрихкоды уже загруженных строк. Таблицу меняет
		// только ее диспетчер, воркер лишь передает коллбек
		for name, ws := range cc.registry {
			mp := name
			ws.Assembly.RefreshFromCatalog(func(updated int) {
				if updated > 0 {
					log.Printf("📚 %s: штрихкоды дозаполнены из справочника: %d", mp, updated)
					StatusHub.BroadcastStatus("info", fmt.Sprintf("%s: штрихкоды дозаполнены: %d", mp, updated))
				}
			})
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "import started",
		"received": len(entries),
	})
}
