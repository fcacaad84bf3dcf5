package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"packmate/server/internal/marketplace"
	"packmate/server/internal/models"
	"packmate/server/internal/utils"
)

// deliveredStatus — локальный статус строк после передачи поставки
// в доставку, согласованный со статусной моделью маркетплейса
func deliveredStatus(marketplaceName string) string {
	if marketplaceName == marketplace.NameOzon {
		return "delivering"
	}
	return "deliver"
}

// SupplyService управляет поставками: создание, выбор активной,
// прикрепление заказов и передача в доставку. Поставки зеркалируются
// в локальную БД, список открытых кэшируется в Redis
type SupplyService struct {
	adapter   marketplace.Adapter
	assembly  *AssemblyService
	db        *gorm.DB
	redisUtil *utils.RedisClient
}

// NewSupplyService создает сервис поставок
func NewSupplyService(adapter marketplace.Adapter, assembly *AssemblyService, db *gorm.DB) *SupplyService {
	return &SupplyService{adapter: adapter, assembly: assembly, db: db}
}

// SetRedisUtil подключает Redis кэш списка открытых поставок
func (s *SupplyService) SetRedisUtil(redisUtil *utils.RedisClient) {
	s.redisUtil = redisUtil
}

func (s *SupplyService) cacheKey() string {
	return fmt.Sprintf("supplies:open:%s", s.adapter.Name())
}

// CreateSupply создает поставку на маркетплейсе и делает ее активной
func (s *SupplyService) CreateSupply(ctx context.Context, name string) (string, error) {
	supplyID, err := s.adapter.CreateSupply(ctx, name)
	if err != nil {
		return "", fmt.Errorf("создание поставки: %w", err)
	}

	if s.db != nil {
		record := &models.SupplyRecord{
			ID:          supplyID,
			Name:        name,
			Marketplace: s.adapter.Name(),
		}
		if err := s.db.Save(record).Error; err != nil {
			log.Printf("⚠️ Поставка %s создана, но не записана локально: %v", supplyID, err)
		}
	}
	if s.redisUtil != nil {
		if err := s.redisUtil.SAdd(s.cacheKey(), supplyID); err != nil {
			log.Printf("⚠️ Redis: кэш поставок не обновлен: %v", err)
		}
	}

	s.assembly.SetActiveSupply(supplyID)

	if publisher := s.assembly.events; publisher != nil {
		publisher.Publish(AssemblyEvent{
			Type:        EventSupplyCreated,
			Marketplace: s.adapter.Name(),
			SupplyID:    supplyID,
		})
	}
	return supplyID, nil
}

// ListOpenSupplies возвращает открытые поставки с маркетплейса и
// обновляет локальное зеркало и кэш
func (s *SupplyService) ListOpenSupplies(ctx context.Context) ([]marketplace.Supply, error) {
	supplies, err := s.adapter.ListSupplies(ctx)
	if err != nil {
		// При недоступном API отдаем кэшированный список, сборка не встает
		if cached := s.cachedSupplies(); cached != nil {
			log.Printf("⚠️ %s: список поставок из кэша (API недоступен: %v)", s.adapter.Name(), err)
			return cached, nil
		}
		return nil, fmt.Errorf("список поставок: %w", err)
	}

	if s.db != nil {
		for _, supply := range supplies {
			record := &models.SupplyRecord{
				ID:          supply.ID,
				Name:        supply.Name,
				Marketplace: s.adapter.Name(),
			}
			if err := s.db.Save(record).Error; err != nil {
				log.Printf("⚠️ Поставка %s не записана локально: %v", supply.ID, err)
			}
		}
	}
	if s.redisUtil != nil {
		ids := make([]interface{}, 0, len(supplies))
		for _, supply := range supplies {
			ids = append(ids, supply.ID)
		}
		if err := s.redisUtil.Delete(s.cacheKey()); err == nil && len(ids) > 0 {
			if err := s.redisUtil.SAdd(s.cacheKey(), ids...); err != nil {
				log.Printf("⚠️ Redis: кэш поставок не обновлен: %v", err)
			}
		}
	}

	return supplies, nil
}

func (s *SupplyService) cachedSupplies() []marketplace.Supply {
	if s.redisUtil == nil {
		return nil
	}
	ids, err := s.redisUtil.SMembers(s.cacheKey())
	if err != nil || len(ids) == 0 {
		return nil
	}
	supplies := make([]marketplace.Supply, 0, len(ids))
	for _, id := range ids {
		supplies = append(supplies, marketplace.Supply{ID: id})
	}
	return supplies
}

// Attach прикрепляет заказ к поставке. 409 от API ("заказ уже в поставке")
// приводит к тому же локальному состоянию, что и успех
func (s *SupplyService) Attach(ctx context.Context, orderID, supplyID string) error {
	err := s.adapter.AttachToSupply(ctx, orderID, supplyID)
	if err != nil && !errors.Is(err, marketplace.ErrAlreadyAttached) {
		return fmt.Errorf("прикрепление заказа %s к поставке %s: %w", orderID, supplyID, err)
	}

	s.assembly.mu.Lock()
	if row, ok := s.assembly.table.FindByOrderID(orderID); ok {
		row.SupplyID = supplyID
	}
	s.assembly.mu.Unlock()
	return nil
}

// CloseSupply передает поставку в доставку. Переход необратим:
// все строки поставки одним массовым обновлением переходят в терминальный
// статус, id убирается из selector активных поставок
func (s *SupplyService) CloseSupply(ctx context.Context, supplyID string) error {
	if err := s.adapter.CloseSupply(ctx, supplyID); err != nil {
		return fmt.Errorf("закрытие поставки %s: %w", supplyID, err)
	}

	affected := s.assembly.MarkSupplyDelivered(supplyID, deliveredStatus(s.adapter.Name()))
	log.Printf("🚚 Поставка %s закрыта, строк переведено в доставку: %d", supplyID, affected)

	if s.db != nil {
		now := time.Now().UTC()
		err := s.db.Model(&models.SupplyRecord{}).
			Where("id = ?", supplyID).
			Updates(map[string]interface{}{"closed": true, "closed_at": &now}).Error
		if err != nil {
			log.Printf("⚠️ Поставка %s не помечена закрытой локально: %v", supplyID, err)
		}
	}
	if s.redisUtil != nil {
		if err := s.redisUtil.SRem(s.cacheKey(), supplyID); err != nil {
			log.Printf("⚠️ Redis: кэш поставок не обновлен: %v", err)
		}
	}

	if publisher := s.assembly.events; publisher != nil {
		publisher.Publish(AssemblyEvent{
			Type:        EventSupplyClosed,
			Marketplace: s.adapter.Name(),
			SupplyID:    supplyID,
			Payload:     map[string]int{"orders": affected},
		})
	}
	return nil
}
