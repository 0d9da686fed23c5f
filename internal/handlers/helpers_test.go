package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/huangang/erpsettings/internal/middleware"
	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/internal/services"
	"github.com/huangang/erpsettings/pkg/cache"
	"github.com/huangang/erpsettings/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:h_%s?mode=memory&cache=shared", name)),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
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

type recordingTransport struct {
	mu   sync.Mutex
	err  error
	sent []services.MailMessage
}

func (r *recordingTransport) Send(_ context.Context, _ services.MailSettings, msg services.MailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

type testEnv struct {
	db        *gorm.DB
	settings  *services.SettingsService
	assets    *storage.LocalStore
	transport *recordingTransport
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	assets := storage.NewLocalStore(t.TempDir())
	transport := &recordingTransport{}

	base := services.MailSettings{Mailer: services.MailerSMTP, Host: "localhost", Port: 25, FromAddress: "boot@example.com"}
	mailer := services.NewMailer(base)
	mailer.SetTransport(services.MailerSMTP, transport)
	mailer.SetTransport(services.MailerLog, transport)

	settings := services.NewSettingsService(services.SettingsDeps{
		DB:       db,
		Store:    services.NewSettingStore(db, cache.NewFastCache(cache.FastCacheConfig{}), 0),
		Mailer:   mailer,
		MailBase: base,
		Branding: services.NewBrandingAssets(assets),
		Styles:   services.NewThemeCompiler(assets),
	})
	return &testEnv{db: db, settings: settings, assets: assets, transport: transport}
}

// withIdentity stands in for AuthRequired.
func withIdentity(username string, perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uint(1))
		c.Set(middleware.ContextUsername, username)
		c.Set(middleware.ContextPermissions, perms)
		c.Next()
	}
}

// router mounts the settings routes for a caller holding perms.
func (e *testEnv) router(perms ...string) *gin.Engine {
	r := gin.New()
	settings := NewSettingsHandler(e.settings)
	modules := NewModuleSettingsHandler(e.settings)
	history := NewHistoryHandler(e.settings)

	r.GET("/api/settings/public", settings.Public)
	g := r.Group("/api/settings", withIdentity("tester", perms...))
	g.GET("", settings.Dashboard)
	g.GET("/search", settings.Search)
	g.GET("/system/:category", settings.ShowCategory)
	g.POST("/system/:category", settings.UpdateCategory)
	g.POST("/test-email", settings.TestEmail)
	g.GET("/export", settings.Export)
	g.POST("/import", settings.Import)
	g.GET("/module/:module", modules.Show)
	g.GET("/module/:module/form", modules.Form)
	g.POST("/module/:module", modules.Update)
	g.POST("/module/:module/reset", modules.Reset)
	g.GET("/history", history.List)
	g.GET("/history/export", history.Export)
	g.GET("/history/key/:key", history.Key)
	g.POST("/history/:id/rollback", history.Rollback)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type formFile struct {
	field, name string
	data        []byte
}

func doMultipart(t *testing.T, r http.Handler, path string, values map[string][]string, files ...formFile) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, vs := range values {
		for _, v := range vs {
			if err := mw.WriteField(k, v); err != nil {
				t.Fatalf("write field: %v", err)
			}
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(f.data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool                `json:"success"`
	Code    int                 `json:"code"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
	Data    map[string]any      `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := sonic.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}
