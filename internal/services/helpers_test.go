package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/pkg/cache"
	"github.com/huangang/erpsettings/pkg/storage"
)

// newTestDB returns a migrated and seeded in-memory database private to t.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := models.Seed(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

// fakeTransport records every message and the settings it was sent with.
type fakeTransport struct {
	mu   sync.Mutex
	err  error
	sent []sentMail
}

type sentMail struct {
	cfg MailSettings
	msg MailMessage
}

func (f *fakeTransport) Send(_ context.Context, cfg MailSettings, msg MailMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{cfg: cfg, msg: msg})
	return f.err
}

type fakeStyles struct {
	calls []map[string]any
	err   error
}

func (f *fakeStyles) Compile(_ context.Context, branding map[string]any) error {
	f.calls = append(f.calls, branding)
	return f.err
}

type testEnv struct {
	db        *gorm.DB
	svc       *SettingsService
	transport *fakeTransport
	styles    *fakeStyles
	assets    *storage.LocalStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	transport := &fakeTransport{}
	styles := &fakeStyles{}
	assets := storage.NewLocalStore(t.TempDir())

	base := MailSettings{Mailer: MailerSMTP, Host: "boot.example.com", Port: 25, FromAddress: "boot@example.com"}
	mailer := NewMailer(base)
	mailer.SetTransport(MailerSMTP, transport)
	mailer.SetTransport(MailerLog, transport)

	svc := NewSettingsService(SettingsDeps{
		DB:       db,
		Store:    NewSettingStore(db, cache.NewFastCache(cache.FastCacheConfig{}), 0),
		Registry: DefaultRegistry(),
		Mailer:   mailer,
		MailBase: base,
		Runtime:  NewAppRuntime(),
		Branding: NewBrandingAssets(assets),
		Styles:   styles,
	})
	return &testEnv{db: db, svc: svc, transport: transport, styles: styles, assets: assets}
}

func admin() Actor {
	id := uint(1)
	return Actor{UserID: &id, Username: "admin", Permissions: []string{PermissionAll}, IP: "127.0.0.1", UserAgent: "go-test"}
}

func historyRows(t *testing.T, db *gorm.DB, key string) []models.SettingHistory {
	t.Helper()
	var rows []models.SettingHistory
	if err := db.Where("setting_key = ?", key).Order("id").Find(&rows).Error; err != nil {
		t.Fatalf("load history: %v", err)
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
