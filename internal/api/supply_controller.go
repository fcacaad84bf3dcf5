package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SupplyController управляет поставками маркетплейса
type SupplyController struct {
	registry Registry
}

func NewSupplyController(registry Registry) *SupplyController {
	return &SupplyController{registry: registry}
}

// GetSupplies возвращает открытые поставки площадки
func (sc *SupplyController) GetSupplies(c *gin.Context) {
	ws, ok := sc.registry.workspace(c)
	if !ok {
		return
	}

	supplies, err := ws.Supply.ListOpenSupplies(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"supplies": supplies,
		"active":   ws.Assembly.ActiveSupply(),
	})
}

// CreateSupply создает поставку и делает ее активной
func (sc *SupplyController) CreateSupply(c *gin.Context) {
	ws, ok := sc.registry.workspace(c)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "details": err.Error()})
		return
	}

	supplyID, err := ws.Supply.CreateSupply(c.Request.Context(), req.Name)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "supply created",
		"supply_id": supplyID,
	})
}

// ActivateSupply делает существующую поставку активной: к ней будут
// прикрепляться финализируемые заказы
func (sc *SupplyController) ActivateSupply(c *gin.Context) {
	ws, ok := sc.registry.workspace(c)
	if !ok {
		return
	}

	supplyID := c.Param("id")
	ws.Assembly.SetActiveSupply(supplyID)
	c.JSON(http.StatusOK, gin.H{"message": "supply activated", "supply_id": supplyID})
}

// AttachOrder прикрепляет заказ к поставке вручную
func (sc *SupplyController) AttachOrder(c *gin.Context) {
	ws, ok := sc.registry.workspace(c)
	if !ok {
		return
	}

	var req struct {
		OrderID string `json:"order_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "details": err.Error()})
		return
	}

	if err := ws.Supply.Attach(c.Request.Context(), req.OrderID, c.Param("id")); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "order attached"})
}

// CloseSupply передает поставку в доставку. Необратимо
func (sc *SupplyController) CloseSupply(c *gin.Context) {
	ws, ok := sc.registry.workspace(c)
	if !ok {
		return
	}

	supplyID := c.Param("id")
	if err := ws.Supply.CloseSupply(c.Request.Context(), supplyID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "supply closed", "supply_id": supplyID})
}
