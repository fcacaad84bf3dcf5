package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"packmate/server/internal/ordertable"
	"packmate/server/internal/services"
)

// OrderController управляет таблицей заказов на сборку
type OrderController struct {
	registry Registry
}

func NewOrderController(registry Registry) *OrderController {
	return &OrderController{registry: registry}
}

type orderRow struct {
	ordertable.Row
	Tag             ordertable.Tag `json:"tag"`
	MarkingComplete bool           `json:"marking_complete"`
}

// GetOrders возвращает снимок таблицы заказов с вычисленными тегами
func (oc *OrderController) GetOrders(c *gin.Context) {
	ws, ok := oc.registry.workspace(c)
	if !ok {
		return
	}

	rows := ws.Assembly.Snapshot()
	out := make([]orderRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, orderRow{
			Row:             row,
			Tag:             ordertable.StatusTag(&row),
			MarkingComplete: row.MarkingComplete(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":        out,
		"total":         len(out),
		"active_supply": ws.Assembly.ActiveSupply(),
	})
}

// LoadOrders подгружает новые заказы с маркетплейса в таблицу.
// Повторный вызов безопасен: уже известные заказы не дублируются
// и их локальный прогресс не затирается
func (oc *OrderController) LoadOrders(c *gin.Context) {
	ws, ok := oc.registry.workspace(c)
	if !ok {
		return
	}

	added, err := ws.Assembly.LoadOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "orders loaded",
		"added":   added,
	})
}

// SyncStatuses запрашивает статусы у маркетплейса и обновляет таблицу
func (oc *OrderController) SyncStatuses(c *gin.Context) {
	ws, ok := oc.registry.workspace(c)
	if !ok {
		return
	}

	updated, err := ws.Sync.SyncStatuses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "statuses synced",
		"updated": updated,
	})
}

// FinalizeShipment переводит отправление на маркетплейсе и печатает
// этикетку. force=true пропускает проверку полноты соседних строк
func (oc *OrderController) FinalizeShipment(c *gin.Context) {
	ws, ok := oc.registry.workspace(c)
	if !ok {
		return
	}

	shipmentID := c.Param("shipment_id")
	force := c.Query("force") == "true"

	result, err := ws.Assembly.FinalizeShipment(c.Request.Context(), shipmentID, force)
	if err != nil {
		c.JSON(scanErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ReprintLabel повторно печатает этикетку строки. Идемпотентно:
// состояние строки не меняется
func (oc *OrderController) ReprintLabel(c *gin.Context) {
	ws, ok := oc.registry.workspace(c)
	if !ok {
		return
	}

	rowID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid row id"})
		return
	}

	if err := ws.Assembly.Reprint(c.Request.Context(), rowID); err != nil {
		if errors.Is(err, services.ErrRowNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "label reprinted", "row_id": rowID})
}

// DeleteOrder убирает строку из таблицы (локально, без влияния
// на маркетплейс)
func (oc *OrderController) DeleteOrder(c *gin.Context) {
	ws, ok := oc.registry.workspace(c)
	if !ok {
		return
	}

	rowID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid row id"})
		return
	}

	if !ws.Assembly.DeleteRow(rowID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "row not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "row deleted", "row_id": rowID})
}

// ClearOrders очищает таблицу заказов площадки
func (oc *OrderController) ClearOrders(c *gin.Context) {
	ws, ok := oc.registry.workspace(c)
	if !ok {
		return
	}

	ws.Assembly.ClearTable()
	c.JSON(http.StatusOK, gin.H{"message": "table cleared"})
}
