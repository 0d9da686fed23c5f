package main

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/erpsettings/internal/handlers"
	"github.com/huangang/erpsettings/internal/middleware"
	"github.com/huangang/erpsettings/pkg/logger"
)

const permManage = "settings.manage"

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for routes that send mail or parse uploads
	heavyLimiter := middleware.NewRateLimiter(1, 5)
	loginLimiter := middleware.NewRateLimiter(2, 10)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", loginLimiter.Middleware(), svc.authHandler.Login)
		}

		// Public settings (app name, branding, locale)
		api.GET("/settings/public", svc.settingsHandler.Public)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.cfg.PermissionsFor), middleware.AuditLog())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.Me)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Settings dashboard and system categories
			settings := protected.Group("/settings")
			settings.GET("", svc.settingsHandler.Dashboard)
			settings.GET("/search", svc.settingsHandler.Search)
			settings.GET("/system/:category", svc.settingsHandler.ShowCategory)
			settings.POST("/system/:category", svc.settingsHandler.UpdateCategory)
			settings.POST("/test-email", heavyLimiter.Middleware(), svc.settingsHandler.TestEmail)

			// Module settings
			settings.GET("/module/:module", svc.moduleHandler.Show)
			settings.GET("/module/:module/form", svc.moduleHandler.Form)
			settings.POST("/module/:module", svc.moduleHandler.Update)
			settings.POST("/module/:module/reset", svc.moduleHandler.Reset)

			// History of one key and rollback are checked per target inside the service
			settings.GET("/history/key/:key", svc.historyHandler.Key)
			settings.POST("/history/:id/rollback", svc.historyHandler.Rollback)
		}

		// Manage-only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(svc.cfg.PermissionsFor), middleware.RequirePermission(permManage), middleware.AuditLog())
		{
			admin.GET("/settings/export", svc.settingsHandler.Export)
			admin.POST("/settings/import", heavyLimiter.Middleware(), svc.settingsHandler.Import)
			admin.GET("/settings/history", svc.historyHandler.List)
			admin.GET("/settings/history/export", svc.historyHandler.Export)

			// System Logs
			admin.GET("/system-logs", svc.logHandler.List)
		}
	}
}
