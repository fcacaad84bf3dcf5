package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"packmate/server/internal/services"
)

// ScanController принимает строки от HID-сканера оператора
type ScanController struct {
	registry Registry
}

func NewScanController(registry Registry) *ScanController {
	return &ScanController{registry: registry}
}

// HandleScan обрабатывает одну отсканированную строку.
// Пустой token — легальный ввод: в режиме набора маркировки это
// сигнал "кодов больше нет"
func (sc *ScanController) HandleScan(c *gin.Context) {
	ws, ok := sc.registry.workspace(c)
	if !ok {
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data", "details": err.Error()})
		return
	}

	result, err := ws.Assembly.HandleScan(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(scanErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// scanErrorStatus переводит ошибки конвейера сборки в HTTP статусы
func scanErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrUnrecognizedToken):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRowNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoRowSelected),
		errors.Is(err, services.ErrAlreadyComplete),
		errors.Is(err, services.ErrNoActiveSupply):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}
