package main

import (
	"context"
	"os"
	"time"

	"github.com/huangang/erpsettings/internal/config"
	"github.com/huangang/erpsettings/internal/handlers"
	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/internal/services"
	"github.com/huangang/erpsettings/internal/utils"
	"github.com/huangang/erpsettings/pkg/cache"
	"github.com/huangang/erpsettings/pkg/logger"
	"github.com/huangang/erpsettings/pkg/storage"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg             *config.Config
	settings        *services.SettingsService
	backups         *services.BackupService
	authHandler     *handlers.AuthHandler
	settingsHandler *handlers.SettingsHandler
	moduleHandler   *handlers.ModuleSettingsHandler
	historyHandler  *handlers.HistoryHandler
	healthHandler   *handlers.HealthHandler
	logHandler      *handlers.SystemLogHandler
}

// bootstrap initializes all application dependencies: database, cache, storage, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	db := models.GetDB()

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Seed default metadata and settings
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}

	services.InitSystemLogger(db)

	store, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	settingsCache := cache.New(cfg.Cache)
	mailBase := services.MailSettingsFromConfig(cfg.Mail)
	settings := services.NewSettingsService(services.SettingsDeps{
		DB:       db,
		Store:    services.NewSettingStore(db, settingsCache, time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		Registry: services.DefaultRegistry(),
		Mailer:   services.NewMailer(mailBase),
		MailBase: mailBase,
		Runtime:  services.NewAppRuntime(),
		Branding: services.NewBrandingAssets(store),
		Styles:   services.NewThemeCompiler(store),
	})

	// Apply the stored timezone and mail settings to the running process
	if err := settings.ApplyPersisted(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to apply persisted settings")
	}

	backups := services.NewBackupService(settings, store, cfg.Backup)
	if err := backups.StartScheduler(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start backup scheduler")
	}

	// Create default admin user
	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(adminPassword()); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		cfg:             cfg,
		settings:        settings,
		backups:         backups,
		authHandler:     authHandler,
		settingsHandler: handlers.NewSettingsHandler(settings),
		moduleHandler:   handlers.NewModuleSettingsHandler(settings),
		historyHandler:  handlers.NewHistoryHandler(settings),
		healthHandler:   handlers.NewHealthHandler(db, settings, backups),
		logHandler:      handlers.NewSystemLogHandler(db),
	}
}

// adminPassword is the initial password of the default admin account.
func adminPassword() string {
	if p := os.Getenv("ADMIN_PASSWORD"); p != "" {
		return p
	}
	return "admin"
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.backups.StopScheduler()
	logger.Info().Msg("All schedulers stopped")
}
