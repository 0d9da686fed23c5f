package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/erpsettings/internal/middleware"
	"github.com/huangang/erpsettings/internal/services"
	"github.com/huangang/erpsettings/pkg/response"
)

type ModuleSettingsHandler struct {
	settings *services.SettingsService
}

func NewModuleSettingsHandler(settings *services.SettingsService) *ModuleSettingsHandler {
	return &ModuleSettingsHandler{settings: settings}
}

// Show GET /api/settings/module/:module
func (h *ModuleSettingsHandler) Show(c *gin.Context) {
	view, err := h.settings.ModuleView(c.Request.Context(), middleware.ActorFromContext(c), c.Param("module"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Form GET /api/settings/module/:module/form
func (h *ModuleSettingsHandler) Form(c *gin.Context) {
	form, err := h.settings.ModuleForm(c.Request.Context(), middleware.ActorFromContext(c), c.Param("module"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, form)
}

// Update POST /api/settings/module/:module
func (h *ModuleSettingsHandler) Update(c *gin.Context) {
	var values map[string]any
	if err := c.ShouldBindJSON(&values); err != nil {
		response.BadRequest(c, "request body must be a JSON object")
		return
	}
	result, err := h.settings.UpdateModule(c.Request.Context(), middleware.ActorFromContext(c), c.Param("module"), values)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Module settings saved successfully.", result)
}

// Reset POST /api/settings/module/:module/reset
func (h *ModuleSettingsHandler) Reset(c *gin.Context) {
	result, err := h.settings.ResetModule(c.Request.Context(), middleware.ActorFromContext(c), c.Param("module"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Module settings reset to defaults.", result)
}
