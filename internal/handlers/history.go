package handlers

import (
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/huangang/erpsettings/internal/middleware"
	"github.com/huangang/erpsettings/internal/services"
	"github.com/huangang/erpsettings/pkg/response"
)

type HistoryHandler struct {
	settings *services.SettingsService
}

func NewHistoryHandler(settings *services.SettingsService) *HistoryHandler {
	return &HistoryHandler{settings: settings}
}

// List GET /api/settings/history
func (h *HistoryHandler) List(c *gin.Context) {
	var filter services.HistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.settings.History(c.Request.Context(), middleware.ActorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

// Key returns the last changes of one key; ?module= selects a module key.
// GET /api/settings/history/key/:key
func (h *HistoryHandler) Key(c *gin.Context) {
	items, err := h.settings.KeyHistory(c.Request.Context(), middleware.ActorFromContext(c), c.Param("key"), c.Query("module"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"key": c.Param("key"), "module": c.Query("module"), "items": items})
}

// Export GET /api/settings/history/export
func (h *HistoryHandler) Export(c *gin.Context) {
	var filter services.HistoryFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	doc, err := h.settings.ExportHistory(c.Request.Context(), middleware.ActorFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	body, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "settings-history-"+exportStamp(doc.ExportedAt)+".json", "application/json", body)
}

// Rollback POST /api/settings/history/:id/rollback
func (h *HistoryHandler) Rollback(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid history id")
		return
	}
	result, err := h.settings.Rollback(c.Request.Context(), middleware.ActorFromContext(c), uint(id))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Setting rolled back successfully.", result)
}
