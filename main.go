package main

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"packmate/server/internal/api"
	"packmate/server/internal/config"
	"packmate/server/internal/database"
	"packmate/server/internal/marketplace"
	"packmate/server/internal/models"
	"packmate/server/internal/printer"
	"packmate/server/internal/services"
	"packmate/server/internal/utils"
)

func main() {
	// Загружаем переменные окружения из .env файла (если существует)
	// Игнорируем ошибку, если файл не найден (для production окружений)
	if err := godotenv.Load(); err != nil {
		log.Printf("ℹ️ .env файл не найден, используем переменные окружения системы")
	} else {
		log.Printf("✅ Переменные окружения загружены из .env файла")
	}

	// Загрузка конфигурации
	cfg := config.Load()

	// Логируем наличие DATABASE_URL (без пароля)
	if cfg.DatabaseURL != "" {
		safeURL := cfg.DatabaseURL
		if idx := strings.Index(safeURL, "@"); idx > 0 {
			if schemeIdx := strings.Index(safeURL, "://"); schemeIdx > 0 {
				safeURL = safeURL[:schemeIdx+3] + "***@" + safeURL[idx+1:]
			}
		}
		log.Printf("📋 DATABASE_URL установлен: %s", safeURL)
	}

	// Подключение к PostgreSQL
	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Printf("❌ PostgreSQL connection failed: %v", err)
		log.Printf("⚠️ Продолжаем без БД: справочник, КИЗы и зеркало поставок отключены")
		db = nil
	} else {
		defer database.ClosePostgres(db)

		// Выполняем миграции
		if err := models.AutoMigrate(db); err != nil {
			log.Printf("❌ Migration failed: %v", err)
			log.Printf("⚠️ Continuing with limited functionality")
		} else {
			log.Println("✅ Database migrations completed")
		}
	}

	// Подключение к Redis (с поддержкой Sentinel)
	redisClient, err := database.ConnectRedis(
		cfg.RedisURL,
		cfg.RedisSentinelAddrs,
		cfg.RedisMasterName,
	)
	var redisUtil *utils.RedisClient
	if err != nil {
		log.Printf("⚠️ Redis connection failed: %v (continuing without Redis)", err)
		redisClient = nil
	} else {
		redisUtil = utils.NewRedisClient(redisClient)
	}
	defer database.CloseRedis(redisClient)

	// Справочник товаров и реестр КИЗов (требуют БД)
	var catalogService *services.CatalogService
	var cisService *services.CISService
	if db != nil {
		catalogService = services.NewCatalogService(db)
		cisService = services.NewCISService(db)
		log.Println("✅ Catalog и CIS сервисы инициализированы")
	} else {
		log.Println("⚠️ Catalog и CIS сервисы не запущены: PostgreSQL недоступен")
	}

	// Принтер этикеток: спул-каталог, который разбирает агент печати
	labelPrinter, err := printer.NewSpoolPrinter(cfg.LabelSpoolDir)
	if err != nil {
		log.Fatalf("❌ Спул этикеток недоступен (%s): %v", cfg.LabelSpoolDir, err)
	}
	log.Printf("🖨️ Спул этикеток: %s", cfg.LabelSpoolDir)

	// Публикатор событий аудита (Kafka, необязателен)
	eventPublisher := services.NewEventPublisher(cfg.KafkaBrokers, cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
	if eventPublisher != nil {
		defer eventPublisher.Close()
	} else {
		log.Println("⚠️ Kafka producer не запущен: KAFKA_BROKERS не установлен")
	}

	// Рабочие пространства площадок: конвейер сборки + поставки + синхронизация
	registry := api.Registry{}

	if cfg.WBToken != "" {
		wbAdapter := marketplace.NewWBAdapter(marketplace.NewWBClient(cfg.WBBaseURL, cfg.WBToken, cfg.APITimeout))
		registry[marketplace.NameWB] = buildWorkspace(wbAdapter, catalogService, cisService, labelPrinter, eventPublisher, redisUtil, db)
		log.Println("✅ Wildberries workspace инициализирован")
	} else {
		log.Println("⚠️ Wildberries workspace не запущен: WB_API_TOKEN не установлен")
	}

	if cfg.OzonClientID != "" && cfg.OzonAPIKey != "" {
		ozonAdapter := marketplace.NewOzonAdapter(marketplace.NewOzonClient(cfg.OzonBaseURL, cfg.OzonClientID, cfg.OzonAPIKey, cfg.APITimeout))
		registry[marketplace.NameOzon] = buildWorkspace(ozonAdapter, catalogService, cisService, labelPrinter, eventPublisher, redisUtil, db)
		log.Println("✅ Ozon workspace инициализирован")
	} else {
		log.Println("⚠️ Ozon workspace не запущен: OZON_CLIENT_ID/OZON_API_KEY не установлены")
	}

	if len(registry) == 0 {
		log.Fatalf("❌ Ни одна площадка не настроена: нужен WB_API_TOKEN или OZON_CLIENT_ID+OZON_API_KEY")
	}

	// Запускаем WebSocket Hub статусной ленты операторов
	go api.StatusHub.Run()
	log.Println("🖥️ WebSocket Hub запущен для терминалов оператора")

	// Диспетчеры конвейеров и фоновая синхронизация статусов
	for name, ws := range registry {
		go ws.Assembly.Run()
		go runSyncLoop(name, ws.Sync, cfg.SyncInterval)
	}
	log.Printf("⏰ Фоновая синхронизация статусов запущена (каждые %v)", cfg.SyncInterval)

	// Отключаем debug-логи gin
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Health check endpoint
	r.GET("/api/v1/health", func(c *gin.Context) {
		marketplaces := make([]string, 0, len(registry))
		for name := range registry {
			marketplaces = append(marketplaces, name)
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ok",
			"service":      "Packmate Server",
			"version":      "1.0.0",
			"marketplaces": marketplaces,
		})
	})

	// Логирование всех запросов
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		log.Printf("🌐 %s %s - Status: %d - Latency: %v", method, path, status, latency)
	})

	// CORS для операторского фронтенда
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// API routes
	apiGroup := r.Group("/api/v1")

	scanController := api.NewScanController(registry)
	orderController := api.NewOrderController(registry)
	supplyController := api.NewSupplyController(registry)

	mpGroup := apiGroup.Group("/:marketplace")
	{
		mpGroup.POST("/scan", scanController.HandleScan) // Одна строка от HID-сканера

		mpGroup.GET("/orders", orderController.GetOrders)              // Таблица заказов с тегами
		mpGroup.POST("/orders/load", orderController.LoadOrders)       // Подгрузить новые заказы
		mpGroup.POST("/orders/sync", orderController.SyncStatuses)     // Синхронизация статусов вручную
		mpGroup.DELETE("/orders", orderController.ClearOrders)         // Очистить таблицу
		mpGroup.DELETE("/orders/:id", orderController.DeleteOrder)     // Убрать строку
		mpGroup.POST("/orders/:id/reprint", orderController.ReprintLabel) // Повторная печать этикетки

		mpGroup.POST("/shipments/:shipment_id/finalize", orderController.FinalizeShipment) // Принудительная финализация (?force=true)

		mpGroup.GET("/supplies", supplyController.GetSupplies)              // Открытые поставки
		mpGroup.POST("/supplies", supplyController.CreateSupply)            // Создать поставку
		mpGroup.POST("/supplies/:id/activate", supplyController.ActivateSupply) // Сделать активной
		mpGroup.POST("/supplies/:id/attach", supplyController.AttachOrder)  // Прикрепить заказ вручную
		mpGroup.POST("/supplies/:id/close", supplyController.CloseSupply)   // Передать в доставку
	}

	// Справочник товаров и КИЗы (общие для площадок)
	if db != nil {
		catalogController := api.NewCatalogController(catalogService, registry)
		catalogGroup := apiGroup.Group("/catalog")
		{
			catalogGroup.GET("", catalogController.GetCatalog)           // Весь справочник
			catalogGroup.POST("/import", catalogController.ImportCatalog) // Массовый импорт (фоновый)
		}

		cisController := api.NewCISController(cisService)
		cisGroup := apiGroup.Group("/cis")
		{
			cisGroup.GET("", cisController.GetByDateRange)                            // Выгрузка за период
			cisGroup.DELETE("", cisController.DeleteByCode)                           // Удалить один код
			cisGroup.GET("/shipments/:shipment_id", cisController.GetByShipment)      // Коды отправления
			cisGroup.DELETE("/shipments/:shipment_id", cisController.DeleteByShipment) // Очистить КИЗы отправления
		}
		log.Println("📚 Catalog и CIS endpoints enabled: /api/v1/catalog, /api/v1/cis")
	} else {
		log.Println("⚠️ Catalog и CIS endpoints not enabled: PostgreSQL недоступен")
	}

	// WebSocket статусной ленты
	apiGroup.GET("/ws", api.ServeWS)

	port := cfg.ServerPort
	log.Printf("🚀 Server starting on port %s", port)
	log.Printf("📡 API доступен на http://0.0.0.0:%s/api/v1", port)
	if err := r.Run("0.0.0.0:" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// buildWorkspace собирает сервисы одной площадки и связывает их между собой
func buildWorkspace(
	adapter marketplace.Adapter,
	catalog *services.CatalogService,
	cis *services.CISService,
	labelPrinter printer.Printer,
	events *services.EventPublisher,
	redisUtil *utils.RedisClient,
	db *gorm.DB,
) *api.Workspace {
	assembly := services.NewAssemblyService(adapter, catalog, cis, labelPrinter)
	if events != nil {
		assembly.SetEventPublisher(events)
	}
	// Статусные сообщения конвейера уходят в WebSocket ленту операторов
	assembly.SetNotifier(api.StatusHub.BroadcastStatus)
	if redisUtil != nil {
		assembly.SetRedisUtil(redisUtil)
	}

	supply := services.NewSupplyService(adapter, assembly, db)
	if redisUtil != nil {
		supply.SetRedisUtil(redisUtil)
	}

	sync := services.NewSyncService(adapter, assembly)
	if cis != nil {
		sync.SetCISService(cis)
	}

	return &api.Workspace{Assembly: assembly, Supply: supply, Sync: sync}
}

// runSyncLoop периодически синхронизирует статусы заказов площадки
func runSyncLoop(name string, syncService *services.SyncService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), interval/2)
		updated, err := syncService.SyncStatuses(ctx)
		cancel()
		if err != nil {
			log.Printf("⚠️ %s: фоновая синхронизация статусов: %v", name, err)
			continue
		}
		if updated > 0 {
			log.Printf("🔄 %s: статусы обновлены, строк: %d", name, updated)
		}
	}
}
