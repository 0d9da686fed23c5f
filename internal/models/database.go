package models

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/huangang/erpsettings/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to the configured database without touching the global.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return db, nil
}

func InitDB(cfg *config.DatabaseConfig) error {
	db, err := Open(cfg)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&SystemSetting{},
		&ModuleSetting{},
		&SettingMetadata{},
		&SettingHistory{},
		&SystemLog{},
	)
}

func AutoMigrate() error {
	return Migrate(DB)
}

func GetDB() *gorm.DB {
	return DB
}

// Seed inserts default metadata and settings that do not exist yet.
// Existing rows are never overwritten.
func Seed(db *gorm.DB) error {
	for _, meta := range DefaultMetadata() {
		var existing SettingMetadata
		err := db.Where("category = ? AND setting_key = ?", meta.Category, meta.Key).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := db.Create(&meta).Error; err != nil {
				return fmt.Errorf("seed metadata %s.%s: %w", meta.Category, meta.Key, err)
			}
		} else if err != nil {
			return err
		}
	}

	for _, setting := range DefaultSettings() {
		var count int64
		if err := db.Model(&SystemSetting{}).Where("setting_key = ?", setting.Key).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := db.Create(&setting).Error; err != nil {
				return fmt.Errorf("seed setting %s: %w", setting.Key, err)
			}
		}
	}
	return nil
}

// SeedDefaultData seeds the global database.
func SeedDefaultData() error {
	return Seed(DB)
}
