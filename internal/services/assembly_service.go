package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"packmate/server/internal/marketplace"
	"packmate/server/internal/marking"
	"packmate/server/internal/models"
	"packmate/server/internal/ordertable"
	"packmate/server/internal/printer"
	"packmate/server/internal/utils"
)

// Ошибки конвейера сборки. Все они восстановимые: оператор исправляет
// ввод и сканирует заново, процесс никогда не падает
var (
	ErrRowNotFound       = errors.New("строка с этим штрихкодом не найдена")
	ErrNoRowSelected     = errors.New("строка не выбрана, сначала отсканируйте штрихкод")
	ErrAlreadyComplete   = errors.New("коды маркировки уже набраны полностью")
	ErrNoActiveSupply    = errors.New("нет активной поставки")
	ErrUnrecognizedToken = errors.New("ввод не распознан ни как штрихкод, ни как код маркировки")
)

// ScanResult — итог обработки одного скана для показа оператору
type ScanResult struct {
	Kind         string          `json:"kind"` // 'barcode' | 'marking' | 'advance'
	Message      string          `json:"message"`
	RowID        int             `json:"row_id,omitempty"`
	Tag          ordertable.Tag  `json:"tag,omitempty"`
	CodesTotal   int             `json:"codes_total,omitempty"`
	CodesNeeded  int             `json:"codes_needed,omitempty"`
	Finalized    bool            `json:"finalized"`
	Printed      bool            `json:"printed"`
	Warning      string          `json:"warning,omitempty"`
}

// AssemblyService — конвейер сборки заказов: разбор скана, привязка
// штрихкода, набор кодов маркировки, финализация и печать этикетки.
// Владеет таблицей заказов и сериализует весь доступ к ней: один скан
// обрабатывается полностью (включая удаленные вызовы) до приема следующего.
// Фоновые воркеры не трогают таблицу напрямую — передают готовый результат
// через Post, коллбек выполняется диспетчером под тем же мьютексом.
type AssemblyService struct {
	mu      sync.Mutex
	table   *ordertable.Table
	adapter marketplace.Adapter
	catalog *CatalogService
	cis     *CISService
	printer printer.Printer
	events  *EventPublisher
	redis   *utils.RedisClient
	notify  func(level, text string)

	activeSupplyID string
	selected       *ordertable.Row
	mode           marking.ScanMode

	posted chan func()
	stop   chan struct{}
}

// NewAssemblyService создает конвейер сборки для одной площадки
func NewAssemblyService(adapter marketplace.Adapter, catalog *CatalogService, cis *CISService, prn printer.Printer) *AssemblyService {
	return &AssemblyService{
		table:   ordertable.New(),
		adapter: adapter,
		catalog: catalog,
		cis:     cis,
		printer: prn,
		mode:    marking.AwaitingBarcode,
		posted:  make(chan func(), 64),
		stop:    make(chan struct{}),
	}
}

// SetEventPublisher устанавливает публикатор событий аудита
func (s *AssemblyService) SetEventPublisher(p *EventPublisher) {
	s.events = p
}

// SetNotifier устанавливает канал статусных сообщений оператору
func (s *AssemblyService) SetNotifier(fn func(level, text string)) {
	s.notify = fn
}

// SetRedisUtil включает кэш этикеток: перепечатка работает и при
// недоступном API маркетплейса
func (s *AssemblyService) SetRedisUtil(redisUtil *utils.RedisClient) {
	s.redis = redisUtil
}

// Run запускает диспетчер отложенных коллбеков от фоновых воркеров
func (s *AssemblyService) Run() {
	for {
		select {
		case fn := <-s.posted:
			s.mu.Lock()
			fn()
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// Stop останавливает диспетчер
func (s *AssemblyService) Stop() {
	close(s.stop)
}

// Post передает коллбек на выполнение в главном логическом потоке.
// Единственный разрешенный способ для фонового воркера изменить таблицу
func (s *AssemblyService) Post(fn func()) {
	select {
	case s.posted <- fn:
	default:
		// Очередь переполнена — выполняем синхронно, результат нельзя терять
		s.mu.Lock()
		fn()
		s.mu.Unlock()
	}
}

func (s *AssemblyService) statusMessage(level, text string) {
	if s.notify != nil {
		s.notify(level, text)
	}
}

// HandleScan обрабатывает одну отсканированную строку от HID-сканера.
// Классификация автоматическая: EAN-13 — привязка штрихкода, код
// Честного Знака — набор маркировки, пустой Enter в режиме набора —
// сигнал "кодов больше нет"
func (s *AssemblyService) HandleScan(ctx context.Context, token string) (*ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Дальше работаем только с каноническим токеном: классификатор
	// прощает пробелы по краям, состояние таблицы — нет
	token = strings.TrimSpace(token)

	kind := marking.Classify(token, s.mode)
	switch kind {
	case marking.TokenBarcode:
		return s.handleBarcode(marking.CanonicalBarcode(token))
	case marking.TokenMarking:
		return s.handleMarking(ctx, token)
	default:
		s.statusMessage("error", fmt.Sprintf("Не распознано: %q", token))
		return nil, ErrUnrecognizedToken
	}
}

// handleBarcode: Unresolved → BarcodeAttached.
// Находит первую необработанную строку с этим штрихкодом, записывает
// штрихкод в строку и синхронизирует справочник в обе стороны
func (s *AssemblyService) handleBarcode(barcode string) (*ScanResult, error) {
	row, ok := s.table.FindByBarcode(barcode, s.adapter.Terminal())
	if !ok {
		s.statusMessage("error", fmt.Sprintf("Заказ со штрихкодом %s не найден", barcode))
		return nil, ErrRowNotFound
	}

	row.Barcode = barcode
	if s.catalog != nil {
		if err := s.catalog.SaveFromScan(row, barcode); err != nil {
			// Справочник не критичен для сборки, предупреждаем и продолжаем
			log.Printf("⚠️ Каталог: %v", err)
			s.statusMessage("warning", "Штрихкод принят, но справочник не обновлен")
		}
	}

	s.selected = row
	s.mode = marking.AwaitingMarking

	if s.events != nil {
		s.events.Publish(AssemblyEvent{
			Type:        EventScanAccepted,
			Marketplace: s.adapter.Name(),
			OrderID:     row.OrderID,
			ShipmentID:  row.ShipmentID,
		})
	}

	msg := fmt.Sprintf("Заказ %s: %s/%s, нужно кодов %d", row.OrderID, row.VendorArticle, row.Size, row.Quantity)
	s.statusMessage("info", msg)
	return &ScanResult{
		Kind:        "barcode",
		Message:     msg,
		RowID:       row.ID,
		Tag:         ordertable.StatusTag(row),
		CodesTotal:  len(row.MarkingCodes),
		CodesNeeded: row.Quantity,
	}, nil
}

// handleMarking: BarcodeAttached → MarkingComplete (→ Finalized → Printed).
// Пустой токен в режиме набора — попытка финализировать без нового кода
func (s *AssemblyService) handleMarking(ctx context.Context, code string) (*ScanResult, error) {
	row := s.selected
	if row == nil {
		s.statusMessage("error", "Сначала отсканируйте штрихкод товара")
		return nil, ErrNoRowSelected
	}

	if code == "" {
		// "Кодов больше нет": пробуем финализировать то, что набрано
		result := &ScanResult{Kind: "advance", RowID: row.ID}
		s.finalizeAndPrint(ctx, row, false, result)
		return result, nil
	}

	if row.MarkingComplete() {
		// Лишний код не добавляем и не роняем список — явный отказ
		s.statusMessage("error", fmt.Sprintf("Заказ %s: коды уже набраны (%d/%d)", row.OrderID, len(row.MarkingCodes), row.Quantity))
		return nil, ErrAlreadyComplete
	}

	// Локальное состояние продвигается до удаленного вызова: прогресс
	// оператора не теряется из-за сетевой ошибки, повтор — на его стороне
	row.MarkingCodes = append(marking.Normalize(row.MarkingCodes), code)

	result := &ScanResult{
		Kind:        "marking",
		RowID:       row.ID,
		CodesTotal:  len(row.MarkingCodes),
		CodesNeeded: row.Quantity,
		Tag:         ordertable.StatusTag(row),
	}

	if s.cis != nil {
		record := &models.CISRecord{
			Code:          code,
			ShipmentID:    row.ShipmentID,
			OrderID:       row.OrderID,
			Price:         row.Price,
			SKU:           row.SKU,
			VendorArticle: row.VendorArticle,
			Size:          row.Size,
			Marketplace:   row.Marketplace,
			Status:        models.CISStatusShipped,
		}
		if err := s.cis.Upsert(record); err != nil {
			log.Printf("⚠️ КИЗ: %v", err)
			result.Warning = "Код принят, но не сохранен в журнал КИЗ"
		}
	}

	// Попутно обогащаем справочник GTIN из кода
	if gtin := marking.ExtractGTIN(code); gtin != "" && s.catalog != nil {
		if err := s.catalog.MergeGTIN(row.VendorArticle, row.Size, gtin); err != nil {
			log.Printf("⚠️ Каталог GTIN: %v", err)
		}
	}

	// Прикрепляем код на стороне маркетплейса. 409 ("уже прикреплен") —
	// успех; прочие ошибки не откатывают локальный прогресс
	err := s.adapter.AttachMarking(ctx, marketplace.AttachMarkingRequest{
		OrderID:    row.OrderID,
		ShipmentID: row.ShipmentID,
		SKU:        row.SKU,
		Codes:      []string{code},
	})
	if err != nil && !errors.Is(err, marketplace.ErrAlreadyAttached) {
		log.Printf("⚠️ %s: ошибка прикрепления кода к заказу %s: %v", s.adapter.Name(), row.OrderID, err)
		result.Warning = "Код принят локально, но маркетплейс недоступен — повторите позже"
		s.statusMessage("warning", result.Warning)
	}

	if s.events != nil {
		s.events.Publish(AssemblyEvent{
			Type:        EventMarkingAdded,
			Marketplace: s.adapter.Name(),
			OrderID:     row.OrderID,
			ShipmentID:  row.ShipmentID,
			Payload:     map[string]int{"codes": len(row.MarkingCodes), "quantity": row.Quantity},
		})
	}

	result.Message = fmt.Sprintf("Код %d/%d принят", len(row.MarkingCodes), row.Quantity)
	s.statusMessage("info", result.Message)

	if row.MarkingComplete() {
		s.finalizeAndPrint(ctx, row, false, result)
	}
	return result, nil
}

// finalizeAndPrint: MarkingComplete → Finalized → Printed.
// Финализация требует полного набора кодов у всех строк отправления:
// частичная отгрузка маркетплейсу запрещена (force — административный
// обход проверки). Ошибка финализации блокирует переход — ложный
// "подтвержден" помешал бы настоящей отправке позже. Ошибка печати
// переход не блокирует: этикетку можно перепечатать
func (s *AssemblyService) finalizeAndPrint(ctx context.Context, row *ordertable.Row, force bool, result *ScanResult) {
	if !force && !s.table.SiblingsComplete(row.ShipmentID) {
		msg := fmt.Sprintf("Отправление %s: есть недобранные позиции, финализация отложена", row.ShipmentID)
		s.statusMessage("info", msg)
		if result.Message == "" {
			result.Message = msg
		}
		return
	}

	siblings := s.table.RowsByShipment(row.ShipmentID)

	if s.adapter.RequiresSupply() && s.activeSupplyID == "" {
		s.statusMessage("error", "Нет активной поставки: создайте или выберите поставку")
		result.Warning = ErrNoActiveSupply.Error()
		return
	}

	items := make([]marketplace.FinalizeItem, 0, len(siblings))
	for _, sib := range siblings {
		items = append(items, marketplace.FinalizeItem{SKU: sib.SKU, Quantity: sib.Quantity})
	}

	err := s.adapter.Finalize(ctx, marketplace.FinalizeRequest{
		OrderID:    row.OrderID,
		ShipmentID: row.ShipmentID,
		SupplyID:   s.activeSupplyID,
		Items:      items,
	})
	if err != nil && !errors.Is(err, marketplace.ErrAlreadyAttached) {
		// Переход заблокирован, локальный статус не меняется
		log.Printf("❌ %s: финализация %s не удалась: %v", s.adapter.Name(), row.ShipmentID, err)
		s.statusMessage("error", fmt.Sprintf("Финализация не удалась: %v", err))
		result.Warning = fmt.Sprintf("финализация не удалась: %v", err)
		return
	}

	for _, sib := range siblings {
		sib.OrderStatus = s.adapter.AwaitingStatus()
		if s.adapter.RequiresSupply() {
			sib.SupplyID = s.activeSupplyID
		}
	}
	result.Finalized = true
	s.statusMessage("info", fmt.Sprintf("Отправление %s подтверждено", row.ShipmentID))

	if s.events != nil {
		s.events.Publish(AssemblyEvent{
			Type:        EventFinalized,
			Marketplace: s.adapter.Name(),
			OrderID:     row.OrderID,
			ShipmentID:  row.ShipmentID,
			SupplyID:    s.activeSupplyID,
		})
	}

	if s.printLabel(ctx, row) {
		result.Printed = true
		result.Tag = ordertable.StatusTag(row)
	}

	// Сканирование следующего заказа начинается со штрихкода
	s.selected = nil
	s.mode = marking.AwaitingBarcode
}

// printLabel загружает и печатает этикетку, затем помечает строки
// отправления обработанными. processing_status переходит один раз,
// повторная печать его не меняет
func (s *AssemblyService) printLabel(ctx context.Context, row *ordertable.Row) bool {
	cacheKey := fmt.Sprintf("label:%s:%s", s.adapter.Name(), s.adapter.SyncID(row))

	label, err := s.adapter.GetLabel(ctx, s.adapter.SyncID(row))
	if err != nil {
		// При недоступном API перепечатка берет этикетку из кэша
		if s.redis != nil {
			if cached, cacheErr := s.redis.GetBytes(cacheKey); cacheErr == nil && len(cached) > 0 {
				log.Printf("📦 %s: этикетка %s взята из кэша (API недоступен)", s.adapter.Name(), row.ShipmentID)
				label = cached
				err = nil
			}
		}
	}
	if err != nil {
		log.Printf("⚠️ %s: этикетка для %s не получена: %v", s.adapter.Name(), row.ShipmentID, err)
		s.statusMessage("warning", "Заказ подтвержден, но этикетка не получена — перепечатайте")
		return false
	}
	if s.redis != nil {
		if cacheErr := s.redis.SetBytes(cacheKey, label, 24*time.Hour); cacheErr != nil {
			log.Printf("⚠️ Redis: этикетка %s не закэширована: %v", row.ShipmentID, cacheErr)
		}
	}

	if err := s.printer.Print(label, s.adapter.LabelFormat()); err != nil {
		log.Printf("⚠️ Печать этикетки %s: %v", row.ShipmentID, err)
		s.statusMessage("warning", "Этикетка получена, но печать не удалась — перепечатайте")
		return false
	}

	for _, sib := range s.table.RowsByShipment(row.ShipmentID) {
		sib.ProcessingStatus = ordertable.ProcessingProcessed
	}

	if s.events != nil {
		s.events.Publish(AssemblyEvent{
			Type:        EventLabelPrinted,
			Marketplace: s.adapter.Name(),
			OrderID:     row.OrderID,
			ShipmentID:  row.ShipmentID,
		})
	}
	s.statusMessage("info", fmt.Sprintf("Этикетка %s напечатана", row.ShipmentID))
	return true
}

// FinalizeShipment финализирует отправление по явной команде оператора.
// force обходит проверку готовности соседних строк (административный режим)
func (s *AssemblyService) FinalizeShipment(ctx context.Context, shipmentID string, force bool) (*ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.table.RowsByShipment(shipmentID)
	if len(rows) == 0 {
		return nil, ErrRowNotFound
	}

	result := &ScanResult{Kind: "finalize", RowID: rows[0].ID}
	s.finalizeAndPrint(ctx, rows[0], force, result)
	return result, nil
}

// Reprint повторно печатает этикетку строки. Идемпотентно:
// processing_status уже обработанной строки не меняется
func (s *AssemblyService) Reprint(ctx context.Context, rowID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.table.FindByID(rowID)
	if !ok {
		return ErrRowNotFound
	}
	if !s.printLabel(ctx, row) {
		return fmt.Errorf("повторная печать этикетки %s не удалась", row.ShipmentID)
	}
	return nil
}

// LoadOrders загружает свежие заказы из API и вливает их в таблицу.
// Существующие строки не трогаются: локальные правки не затираются
func (s *AssemblyService) LoadOrders(ctx context.Context) (int, error) {
	remote, err := s.adapter.ListOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("загрузка заказов %s: %w", s.adapter.Name(), err)
	}

	rows := make([]ordertable.Row, 0, len(remote))
	for _, o := range remote {
		row := marketplace.RowFromRemote(o, s.adapter.Name())
		if s.catalog != nil {
			s.catalog.EnrichRow(&row)
			if row.Barcode == "" {
				for _, mpBarcode := range o.Barcodes {
					s.catalog.EnrichByMarketplaceBarcode(&row, mpBarcode)
					if row.Barcode != "" {
						break
					}
				}
			}
		}
		rows = append(rows, row)
	}

	s.mu.Lock()
	added := s.table.MergeOrders(rows, s.adapter.RowKey)
	s.mu.Unlock()

	log.Printf("📋 %s: в таблицу добавлено %d новых строк (всего %d)", s.adapter.Name(), added, s.table.Len())
	return added, nil
}

// RefreshFromCatalog передает диспетчеру дозаполнение штрихкодов строк
// после массового импорта справочника. Воркер импорта не трогает таблицу
// сам: коллбек выполнится в главном логическом потоке между сканами.
// done получает число дозаполненных строк
func (s *AssemblyService) RefreshFromCatalog(done func(updated int)) {
	s.Post(func() {
		updated := 0
		if s.catalog != nil {
			for _, r := range s.table.Rows() {
				if r.Barcode != "" {
					continue
				}
				s.catalog.EnrichRow(r)
				if r.Barcode != "" {
					updated++
				}
			}
		}
		if done != nil {
			done(updated)
		}
	})
}

// SetActiveSupply выбирает поставку-приемник для финализируемых заказов
func (s *AssemblyService) SetActiveSupply(supplyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSupplyID = supplyID
}

// ActiveSupply возвращает id активной поставки
func (s *AssemblyService) ActiveSupply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSupplyID
}

// Snapshot возвращает копии строк таблицы для показа в интерфейсе
func (s *AssemblyService) Snapshot() []ordertable.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.table.Rows()
	result := make([]ordertable.Row, 0, len(rows))
	for _, r := range rows {
		copied := *r
		copied.MarkingCodes = append([]string{}, r.MarkingCodes...)
		result = append(result, copied)
	}
	return result
}

// SyncIDs возвращает уникальные идентификаторы строк для запроса статусов
func (s *AssemblyService) SyncIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for _, r := range s.table.Rows() {
		id := s.adapter.SyncID(r)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// ApplyStatuses вливает карту id→статус в таблицу. Обновляются только
// удаленные поля (статус, подстатус, цена); введенное оператором
// (штрихкод, коды маркировки) не трогается
func (s *AssemblyService) ApplyStatuses(statuses map[string]marketplace.StatusInfo) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return mergeStatuses(s.table.Rows(), statuses, s.adapter.SyncID)
}

// MarkSupplyDelivered массово переводит строки закрытой поставки
// в терминальный статус доставки. Возвращает число затронутых строк
func (s *AssemblyService) MarkSupplyDelivered(supplyID, status string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for _, r := range s.table.RowsBySupply(supplyID) {
		r.OrderStatus = status
		affected++
	}
	if s.activeSupplyID == supplyID {
		s.activeSupplyID = ""
	}
	return affected
}

// DeleteRow удаляет строку из таблицы по явному действию оператора
func (s *AssemblyService) DeleteRow(rowID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != nil && s.selected.ID == rowID {
		s.selected = nil
		s.mode = marking.AwaitingBarcode
	}
	return s.table.Delete(rowID)
}

// ClearTable полностью очищает таблицу перед перезагрузкой
func (s *AssemblyService) ClearTable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table.Clear()
	s.selected = nil
	s.mode = marking.AwaitingBarcode
}
