package services

import (
	"context"
	"log"

	"packmate/server/internal/marketplace"
	"packmate/server/internal/ordertable"
)

// Размер чанка для запросов статусов: API площадок ограничивают
// число id в одном вызове
const statusChunkSize = 1000

// SyncService периодически подтягивает актуальные статусы и цены
// заказов из API маркетплейса и вливает их в таблицу заказов
type SyncService struct {
	adapter  marketplace.Adapter
	assembly *AssemblyService
	cis      *CISService
}

// NewSyncService создает синхронизатор статусов
func NewSyncService(adapter marketplace.Adapter, assembly *AssemblyService) *SyncService {
	return &SyncService{adapter: adapter, assembly: assembly}
}

// SetCISService подключает сверку жизненного цикла кодов маркировки
func (s *SyncService) SetCISService(cis *CISService) {
	s.cis = cis
}

// SyncStatuses запрашивает статусы всех строк таблицы чанками и вливает
// их обратно. Ошибка одного чанка не прерывает остальные; возвращается
// число обновленных строк
func (s *SyncService) SyncStatuses(ctx context.Context) (int, error) {
	ids := s.assembly.SyncIDs()
	if len(ids) == 0 {
		return 0, nil
	}

	statuses := make(map[string]marketplace.StatusInfo)
	failed := 0
	for start := 0; start < len(ids); start += statusChunkSize {
		end := start + statusChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		chunk, err := s.adapter.GetStatuses(ctx, ids[start:end])
		if err != nil {
			log.Printf("⚠️ %s: чанк статусов [%d:%d] не получен: %v", s.adapter.Name(), start, end, err)
			failed++
			continue
		}
		for id, info := range chunk {
			statuses[id] = info
		}
	}

	updated := s.assembly.ApplyStatuses(statuses)
	log.Printf("🔄 %s: синхронизация статусов — обновлено %d строк (чанков с ошибкой: %d)", s.adapter.Name(), updated, failed)

	// Попутно сверяем жизненный цикл кодов маркировки с новыми статусами
	if s.cis != nil && len(statuses) > 0 {
		orderStatuses := make(map[string]string, len(statuses))
		for id, info := range statuses {
			orderStatuses[id] = info.Status
		}
		if _, err := s.cis.ReconcileStatuses(orderStatuses); err != nil {
			log.Printf("⚠️ КИЗ: сверка статусов не удалась: %v", err)
		}
	}

	return updated, nil
}

// mergeStatuses — чистая функция слияния карты id→статус в строки таблицы.
// Обновляются только удаленные поля: статус, подстатус, цена. Поля,
// введенные оператором (штрихкод, коды маркировки), не изменяются.
// Возвращает число строк, в которых что-то поменялось
func mergeStatuses(rows []*ordertable.Row, statuses map[string]marketplace.StatusInfo, syncID func(*ordertable.Row) string) int {
	updated := 0
	for _, r := range rows {
		info, ok := statuses[syncID(r)]
		if !ok {
			continue
		}

		changed := false
		if info.Status != "" && info.Status != r.OrderStatus {
			r.OrderStatus = info.Status
			changed = true
		}
		if info.SubStatus != "" && info.SubStatus != r.SubStatus {
			r.SubStatus = info.SubStatus
			changed = true
		}
		if !info.Price.IsZero() && !info.Price.Equal(r.Price) {
			r.Price = info.Price
			changed = true
		}
		if changed {
			updated++
		}
	}
	return updated
}
