package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"packmate/server/internal/services"
)

// Workspace объединяет сервисы одной торговой площадки
type Workspace struct {
	Assembly *services.AssemblyService
	Supply   *services.SupplyService
	Sync     *services.SyncService
}

// Registry — рабочие пространства по имени площадки: 'wb' | 'ozon'
type Registry map[string]*Workspace

// workspace достает рабочее пространство из path-параметра :marketplace.
// Неизвестная площадка — 404, обработчик не вызывается
func (r Registry) workspace(c *gin.Context) (*Workspace, bool) {
	name := c.Param("marketplace")
	ws, ok := r[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown marketplace", "marketplace": name})
		return nil, false
	}
	return ws, true
}
