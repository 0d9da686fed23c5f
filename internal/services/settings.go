package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/metrics"
	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/pkg/logger"
)

const (
	CategoryGeneral  = "general"
	CategoryEmail    = "email"
	CategoryBranding = "branding"
)

// SettingsDeps are the collaborators of SettingsService.
type SettingsDeps struct {
	DB       *gorm.DB
	Store    *SettingStore
	Registry *Registry
	Mailer   *Mailer
	MailBase MailSettings
	Runtime  *AppRuntime
	Branding *BrandingAssets
	Styles   StyleCompiler
}

// SettingsService is the only component that writes settings. Every write
// path validates, applies inside one transaction together with its history
// rows, invalidates the cache after commit and then runs side effects.
type SettingsService struct {
	db       *gorm.DB
	store    *SettingStore
	modules  *ModuleStore
	metadata *MetadataRegistry
	registry *Registry
	history  *HistoryLog
	mailer   *Mailer
	mailBase MailSettings
	runtime  *AppRuntime
	branding *BrandingAssets
	styles   StyleCompiler
}

func NewSettingsService(deps SettingsDeps) *SettingsService {
	s := &SettingsService{
		db:       deps.DB,
		store:    deps.Store,
		modules:  NewModuleStore(deps.DB),
		metadata: NewMetadataRegistry(deps.DB),
		registry: deps.Registry,
		history:  NewHistoryLog(deps.DB),
		mailer:   deps.Mailer,
		mailBase: deps.MailBase,
		runtime:  deps.Runtime,
		branding: deps.Branding,
		styles:   deps.Styles,
	}
	if s.store == nil {
		s.store = NewSettingStore(deps.DB, nil, 0)
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if s.mailer == nil {
		s.mailer = NewMailer(deps.MailBase)
	}
	if s.runtime == nil {
		s.runtime = NewAppRuntime()
	}
	return s
}

func (s *SettingsService) Store() *SettingStore        { return s.store }
func (s *SettingsService) Registry() *Registry         { return s.registry }
func (s *SettingsService) Metadata() *MetadataRegistry { return s.metadata }
func (s *SettingsService) Mailer() *Mailer             { return s.mailer }
func (s *SettingsService) Runtime() *AppRuntime        { return s.runtime }

// ApplyPersisted pushes the stored email and timezone settings into the
// running process. It is called once at startup.
func (s *SettingsService) ApplyPersisted(ctx context.Context) error {
	values, err := s.store.CategoryValues(ctx, CategoryEmail)
	if err != nil {
		return err
	}
	s.mailer.Configure(MailSettingsFromValues(s.mailBase, values))

	if tz, ok := s.store.GetWithDefault(ctx, "default_timezone", "").(string); ok && tz != "" {
		if err := s.runtime.SetTimezone(tz); err != nil {
			logger.Warn().Err(err).Str("timezone", tz).Msg("[Settings] stored timezone ignored")
		}
	}
	return nil
}

// --- read operations ---

type CategorySummary struct {
	CategoryEntry
	Accessible bool `json:"accessible"`
}

type ModuleSummary struct {
	ModuleEntry
	Accessible bool `json:"accessible"`
}

type Dashboard struct {
	Categories []CategorySummary `json:"categories"`
	Modules    []ModuleSummary   `json:"modules"`
}

func (s *SettingsService) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	d := &Dashboard{}
	for _, c := range s.registry.Categories() {
		d.Categories = append(d.Categories, CategorySummary{CategoryEntry: c, Accessible: actor.CanAny(c.Permissions)})
	}
	for _, m := range s.registry.Modules() {
		d.Modules = append(d.Modules, ModuleSummary{ModuleEntry: m, Accessible: actor.CanAny(m.Permissions)})
	}
	return d, nil
}

type CategoryView struct {
	Category CategoryEntry     `json:"category"`
	Fields   []FieldDescriptor `json:"fields"`
	Values   map[string]any    `json:"values"`
}

func (s *SettingsService) CategoryView(ctx context.Context, actor Actor, category string) (*CategoryView, error) {
	entry, err := s.authorizeCategory(actor, category)
	if err != nil {
		return nil, err
	}
	fields, err := s.metadata.GetCategoryMetadata(ctx, category)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.CategoryValues(ctx, category)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(fields)+len(stored))
	for _, f := range fields {
		values[f.Key] = f.Default
	}
	for k, v := range stored {
		values[k] = v
	}
	return &CategoryView{Category: entry, Fields: fields, Values: values}, nil
}

// PublicSettings returns the settings safe to expose without a session.
func (s *SettingsService) PublicSettings(ctx context.Context) (map[string]any, error) {
	return s.store.Public(ctx)
}

type SearchResult struct {
	Key      string `json:"key"`
	Label    string `json:"label,omitempty"`
	Category string `json:"category"`
	Value    any    `json:"value"`
}

const maskedValue = "********"

// Search does a case-insensitive substring match over setting keys, labels
// and rendered values. Password fields never match on, or reveal, their value.
func (s *SettingsService) Search(ctx context.Context, actor Actor, query string) ([]SearchResult, error) {
	if !actor.Can(PermissionManageSettings) {
		return nil, &ForbiddenError{Target: "system", Required: []string{PermissionManageSettings}}
	}
	q := strings.ToLower(strings.TrimSpace(query))
	results := []SearchResult{}
	if q == "" {
		return results, nil
	}

	entries, err := s.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := s.metadata.AllFields(ctx)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		f := fields[e.Key]
		secret := f.InputType == "password"
		value := e.Value
		if secret {
			value = maskedValue
		}
		match := strings.Contains(strings.ToLower(e.Key), q) ||
			(f.Label != "" && strings.Contains(strings.ToLower(f.Label), q)) ||
			(!secret && strings.Contains(strings.ToLower(toString(e.Value)), q))
		if match {
			results = append(results, SearchResult{Key: e.Key, Label: f.Label, Category: e.Category, Value: value})
		}
	}
	return results, nil
}

// --- category updates ---

type UpdateCategoryRequest struct {
	Category string
	Values   map[string]any
	Uploads  []Upload
}

type UpdateResult struct {
	Saved    []string `json:"saved"`
	Changed  []string `json:"changed"`
	Warnings []string `json:"warnings,omitempty"`
}

func newUpdateResult(changes []Change) *UpdateResult {
	r := &UpdateResult{Saved: []string{}, Changed: []string{}}
	for _, c := range changes {
		r.Saved = append(r.Saved, c.Key)
		if c.Changed() {
			r.Changed = append(r.Changed, c.Key)
		}
	}
	return r
}

func (s *SettingsService) authorizeCategory(actor Actor, category string) (CategoryEntry, error) {
	entry, err := s.registry.Category(category)
	if err != nil {
		return CategoryEntry{}, err
	}
	if !actor.CanAny(entry.Permissions) {
		return CategoryEntry{}, &ForbiddenError{Target: entry.Label, Required: entry.Permissions}
	}
	return entry, nil
}

// UpdateCategory applies a partial update to one system category. Only
// the submitted keys are validated and written.
func (s *SettingsService) UpdateCategory(ctx context.Context, actor Actor, req UpdateCategoryRequest) (result *UpdateResult, err error) {
	defer func() { observe("system", err) }()

	if _, err := s.authorizeCategory(actor, req.Category); err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(req.Values))
	for k, v := range req.Values {
		payload[k] = v
	}
	if req.Category == CategoryBranding {
		payload = PrepareBrandingPayload(payload, req.Uploads)
	}

	fields, err := s.metadata.GetCategoryMetadata(ctx, req.Category)
	if err != nil {
		return nil, err
	}
	coerceStructuredValues(fields, payload)

	if errs := ValidateFields(fields, payload); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	if len(payload) == 0 {
		return newUpdateResult(nil), nil
	}

	writes, err := s.systemWrites(req.Category, FieldMap(fields), payload)
	if err != nil {
		return nil, err
	}

	changes, err := s.commitSystem(ctx, actor, models.HistoryActionUpdate, writes, nil)
	if err != nil {
		return nil, err
	}

	result = newUpdateResult(changes)
	// files land only once the paths pointing at them are stored
	if req.Category == CategoryBranding && s.branding != nil {
		if err := s.branding.Save(ctx, req.Uploads); err != nil {
			logger.Warn().Err(err).Str("user", actor.Username).Msg("[Settings] branding upload failed")
			LogError("settings", "branding.upload", err.Error(), metaOf(actor), nil)
			result.Warnings = append(result.Warnings, "branding files were not stored")
		}
	}
	result.Warnings = append(result.Warnings, s.afterCommit(ctx, req.Category, result.Saved)...)
	logger.Info().Str("category", req.Category).Str("user", actor.Username).Int("saved", len(result.Saved)).
		Int("changed", len(result.Changed)).Msg("[Settings] category updated")
	return result, nil
}

type systemWrite struct {
	key   string
	value any
	opts  []SetOption
}

// systemWrites turns a validated payload into ordered writes and runs the
// domain checks that must pass before anything is written.
func (s *SettingsService) systemWrites(category string, fields map[string]FieldDescriptor, payload map[string]any) ([]systemWrite, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, currencyChanged := payload["default_currency"]
	currencyChanged = currencyChanged && category == CategoryGeneral

	writes := make([]systemWrite, 0, len(keys)+1)
	for _, k := range keys {
		if k == "currency_symbol" && currencyChanged {
			continue
		}
		if err := checkDomain(category, k, payload[k]); err != nil {
			return nil, err
		}
		opts := []SetOption{WithCategory(category)}
		if f, ok := fields[k]; ok {
			opts = append(opts, WithType(f.Type))
		}
		writes = append(writes, systemWrite{key: k, value: payload[k], opts: opts})
	}

	if currencyChanged {
		symbol, _ := CurrencySymbol(toString(payload["default_currency"]))
		writes = append(writes, systemWrite{
			key:   "currency_symbol",
			value: symbol,
			opts:  []SetOption{WithCategory(CategoryGeneral), WithType(models.TypeString)},
		})
	}
	return writes, nil
}

// checkDomain rejects well-formed values the application cannot use.
func checkDomain(category, key string, value any) error {
	if category != CategoryGeneral {
		return nil
	}
	switch key {
	case "default_timezone":
		if _, err := LoadTimezone(toString(value)); err != nil {
			return err
		}
	case "default_currency":
		if _, ok := CurrencySymbol(toString(value)); !ok {
			return &ConfigurationError{Field: key, Message: "No currency symbol is known for \"" + toString(value) + "\"."}
		}
	}
	return nil
}

// coerceStructuredValues decodes JSON text submitted for array and json
// fields; multipart forms carry every value as a string.
func coerceStructuredValues(fields []FieldDescriptor, payload map[string]any) {
	for _, f := range fields {
		if f.Type != models.TypeArray && f.Type != models.TypeJSON {
			continue
		}
		raw, ok := payload[f.Key].(string)
		if !ok {
			continue
		}
		if v, err := Decode(raw, f.Type); err == nil {
			payload[f.Key] = v
		}
	}
}

// commitSystem writes every entry and its history row in one transaction,
// then invalidates the settings cache.
func (s *SettingsService) commitSystem(ctx context.Context, actor Actor, action string, writes []systemWrite, rolledBackFrom *uint) ([]Change, error) {
	var changes []Change
	batchID := uuid.NewString()
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTx(tx)
		rows := make([]models.SettingHistory, 0, len(writes))
		for _, w := range writes {
			change, err := store.Upsert(ctx, w.key, w.value, w.opts...)
			if err != nil {
				return err
			}
			changes = append(changes, change)
			row := newHistoryRow(change, action, batchID, actor, now)
			row.RolledBackFrom = rolledBackFrom
			rows = append(rows, row)
		}
		return s.history.Record(ctx, tx, rows...)
	})
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, s.persistenceFailure(actor, "settings."+action, err)
	}

	if err := s.store.Invalidate(ctx); err != nil {
		logger.Warn().Err(err).Msg("[Settings] cache invalidation after commit failed")
	}
	return changes, nil
}

func (s *SettingsService) persistenceFailure(actor Actor, op string, err error) error {
	logger.Error().Err(err).Str("op", op).Str("request_id", actor.RequestID).Str("user", actor.Username).
		Msg("[Settings] write rolled back")
	LogError("settings", op, err.Error(), metaOf(actor), nil)
	return &PersistenceError{Op: op, Err: err}
}

// afterCommit runs the side effects of keys saved in category. Failures
// are logged and reported as warnings; the settings are already stored.
func (s *SettingsService) afterCommit(ctx context.Context, category string, keys []string) []string {
	saved := make(map[string]bool, len(keys))
	for _, k := range keys {
		saved[k] = true
	}
	var warnings []string

	switch category {
	case CategoryEmail:
		values, err := s.store.CategoryValues(ctx, CategoryEmail)
		if err != nil {
			logger.Warn().Err(err).Msg("[Settings] reload email settings")
			warnings = append(warnings, "mail transport was not reconfigured")
			break
		}
		s.mailer.Configure(MailSettingsFromValues(s.mailBase, values))

	case CategoryGeneral:
		if saved["default_timezone"] {
			tz := toString(s.store.GetWithDefault(ctx, "default_timezone", ""))
			if err := s.runtime.SetTimezone(tz); err != nil {
				logger.Warn().Err(err).Str("timezone", tz).Msg("[Settings] apply timezone")
				warnings = append(warnings, "timezone was not applied")
			}
		}

	case CategoryBranding:
		if saved["primary_color"] && s.styles != nil {
			values, err := s.store.CategoryValues(ctx, CategoryBranding)
			if err == nil {
				err = s.styles.Compile(ctx, values)
			}
			if err != nil {
				logger.Warn().Err(err).Msg("[Settings] theme regeneration failed")
				warnings = append(warnings, "theme stylesheet was not regenerated")
			}
		}
	}
	return warnings
}

// --- test email ---

type TestEmailResult struct {
	Sent   bool   `json:"sent"`
	Error  string `json:"error,omitempty"`
	Mailer string `json:"mailer"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// TestEmail applies the persisted email settings to the mailer and sends
// one message to to. The result reflects the send outcome.
func (s *SettingsService) TestEmail(ctx context.Context, actor Actor, to string) (*TestEmailResult, error) {
	if _, err := s.authorizeCategory(actor, CategoryEmail); err != nil {
		return nil, err
	}
	to = strings.TrimSpace(to)
	if validate.Var(to, "required,email") != nil {
		return nil, newFieldError("test_email", "The test email must be a valid email address.")
	}

	values, err := s.store.CategoryValues(ctx, CategoryEmail)
	if err != nil {
		return nil, err
	}
	cfg := MailSettingsFromValues(s.mailBase, values)
	s.mailer.Configure(cfg)

	appName := toString(s.store.GetWithDefault(ctx, "app_name", "ERP"))
	sendErr := s.mailer.Send(ctx, MailMessage{
		To:      []string{to},
		Subject: appName + " test email",
		Body:    testEmailBody(appName, s.runtime.Now()),
	})
	metrics.RecordTestEmail(sendErr == nil)

	result := &TestEmailResult{Sent: sendErr == nil, Mailer: cfg.Mailer, Host: cfg.Host, Port: cfg.Port}
	extra := map[string]any{"to": to, "mailer": cfg.Mailer, "host": cfg.Host, "port": cfg.Port}
	if sendErr != nil {
		result.Error = sendErr.Error()
		LogWarning("settings", "mail.test", "test email failed: "+sendErr.Error(), metaOf(actor), extra)
	} else {
		LogInfo("settings", "mail.test", "test email sent", metaOf(actor), extra)
	}
	return result, nil
}

// --- rollback ---

type RollbackResult struct {
	HistoryID   uint   `json:"history_id"`
	SettingType string `json:"setting_type"`
	Module      string `json:"module,omitempty"`
	Key         string `json:"key"`
	Value       any    `json:"value"`
}

// Rollback writes the old value of a history row back through the normal
// write path and appends a new row. The original row is never modified, so
// rolling back the same row again is always allowed.
func (s *SettingsService) Rollback(ctx context.Context, actor Actor, historyID uint) (result *RollbackResult, err error) {
	defer func() { observe("rollback", err) }()

	entry, err := s.history.Find(ctx, historyID)
	if err != nil {
		return nil, err
	}

	raw := ""
	if entry.OldValue != nil {
		raw = *entry.OldValue
	}
	typ := NormalizeType(entry.ValueType)
	value, err := Decode(raw, typ)
	if err != nil {
		value, typ = raw, models.TypeString
	}

	result = &RollbackResult{HistoryID: entry.ID, SettingType: entry.SettingType, Key: entry.SettingKey, Value: value}

	if entry.SettingType == models.SettingTypeModule {
		module := ""
		if entry.Module != nil {
			module = *entry.Module
		}
		result.Module = module
		mod, err := s.authorizeModule(actor, module)
		if err != nil {
			return nil, err
		}
		_, err = s.commitModule(ctx, actor, models.HistoryActionRollback, mod.Name, &entry.ID, false,
			func(store *ModuleStore) ([]Change, error) {
				change, err := store.Upsert(ctx, mod.Name, entry.SettingKey, value, typ, "")
				return []Change{change}, err
			})
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	if !actor.Can(PermissionManageSettings) {
		return nil, &ForbiddenError{Target: "system", Required: []string{PermissionManageSettings}}
	}

	category := CategoryGeneral
	if row, err := s.store.Row(ctx, entry.SettingKey); err == nil {
		category = row.Category
	} else if _, cat, err := s.metadata.FindField(ctx, entry.SettingKey); err == nil && cat != "" {
		category = cat
	}

	field := map[string]FieldDescriptor{entry.SettingKey: {Key: entry.SettingKey, Type: typ}}
	writes, err := s.systemWrites(category, field, map[string]any{entry.SettingKey: value})
	if err != nil {
		return nil, err
	}
	changes, err := s.commitSystem(ctx, actor, models.HistoryActionRollback, writes, &entry.ID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(changes))
	for _, c := range changes {
		keys = append(keys, c.Key)
	}
	s.afterCommit(ctx, category, keys)
	logger.Info().Uint("history_id", entry.ID).Str("key", entry.SettingKey).Str("user", actor.Username).
		Msg("[Settings] setting rolled back")
	return result, nil
}

// observe records the outcome of a write operation.
func observe(target string, err error) {
	outcome := "ok"
	var (
		notFound  *NotFoundError
		forbidden *ForbiddenError
		invalid   *ValidationError
		cfgErr    *ConfigurationError
		format    *ImportFormatError
	)
	switch {
	case err == nil:
	case errors.As(err, &notFound):
		outcome = "not_found"
	case errors.As(err, &forbidden):
		outcome = "forbidden"
	case errors.As(err, &invalid), errors.As(err, &cfgErr), errors.As(err, &format):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	metrics.RecordUpdate(target, outcome)
}
