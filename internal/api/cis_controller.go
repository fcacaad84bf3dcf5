package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"packmate/server/internal/services"
)

// CISController — выгрузка и чистка кодов маркировки Честного Знака
type CISController struct {
	cis *services.CISService
}

func NewCISController(cis *services.CISService) *CISController {
	return &CISController{cis: cis}
}

// GetByDateRange возвращает отсканированные коды за период
// (?from=2026-01-01&to=2026-01-31)
func (cc *CISController) GetByDateRange(c *gin.Context) {
	from, err := time.Parse("2006-01-02", c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' date, expected YYYY-MM-DD"})
		return
	}
	to, err := time.Parse("2006-01-02", c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' date, expected YYYY-MM-DD"})
		return
	}

	records, err := cc.cis.ByDateRange(from, to.Add(24*time.Hour))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}

// GetByShipment возвращает коды одного отправления
func (cc *CISController) GetByShipment(c *gin.Context) {
	records, err := cc.cis.ByShipment(c.Param("shipment_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   len(records),
	})
}

// DeleteByShipment очищает коды отправления (повторная сборка после
// брака упаковки)
func (cc *CISController) DeleteByShipment(c *gin.Context) {
	deleted, err := cc.cis.DeleteByShipment(c.Param("shipment_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cis codes deleted", "deleted": deleted})
}

// DeleteByCode удаляет один код (?code=...). Код передается query
// параметром: в нем встречаются символы, недопустимые в path
func (cc *CISController) DeleteByCode(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	if err := cc.cis.DeleteByCode(code); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "cis code deleted"})
}
