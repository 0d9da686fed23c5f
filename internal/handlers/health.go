package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/services"
)

// HealthHandler reports the state of the database, the mailer and the
// backup scheduler.
type HealthHandler struct {
	db       *gorm.DB
	settings *services.SettingsService
	backups  *services.BackupService
}

func NewHealthHandler(db *gorm.DB, settings *services.SettingsService, backups *services.BackupService) *HealthHandler {
	return &HealthHandler{db: db, settings: settings, backups: backups}
}

// CheckHealth GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error: " + err.Error()
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}
	if dbStatus != "ok" {
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	components := gin.H{"database": dbStatus}
	if h.settings != nil {
		components["mailer"] = h.settings.Mailer().Settings().Mailer
		components["timezone"] = h.settings.Runtime().Location().String()
	}
	if h.backups != nil {
		if next := h.backups.NextRun(); !next.IsZero() {
			components["next_backup"] = next.Format(time.RFC3339)
		} else {
			components["next_backup"] = "disabled"
		}
	}

	c.JSON(status, gin.H{
		"status":     overall,
		"service":    "erpsettings",
		"components": components,
	})
}
