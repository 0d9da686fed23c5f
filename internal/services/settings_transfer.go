package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/pkg/logger"
)

const (
	ExportVersion = "1"
	// MaxImportSize bounds an import document.
	MaxImportSize = 2 << 20
)

// importAPI keeps numbers as json.Number so integers survive the round trip.
var importAPI = sonic.Config{UseNumber: true}.Froze()

type ExportedSetting struct {
	Value       any    `json:"value"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public"`
}

type ExportedModuleSetting struct {
	Value any    `json:"value"`
	Type  string `json:"type"`
}

// SettingsExport is the document produced by Export and read by Import.
type SettingsExport struct {
	ExportedAt     time.Time                                   `json:"exported_at"`
	Version        string                                      `json:"version"`
	SystemSettings map[string]ExportedSetting                  `json:"system_settings"`
	ModuleSettings map[string]map[string]ExportedModuleSetting `json:"module_settings"`
}

// Export snapshots every system and module setting.
func (s *SettingsService) Export(ctx context.Context, actor Actor) (*SettingsExport, error) {
	if !actor.Can(PermissionManageSettings) {
		return nil, &ForbiddenError{Target: "system", Required: []string{PermissionManageSettings}}
	}
	return s.snapshot(ctx)
}

func (s *SettingsService) snapshot(ctx context.Context) (*SettingsExport, error) {
	entries, err := s.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	doc := &SettingsExport{
		ExportedAt:     s.runtime.Now(),
		Version:        ExportVersion,
		SystemSettings: make(map[string]ExportedSetting, len(entries)),
		ModuleSettings: make(map[string]map[string]ExportedModuleSetting),
	}
	for _, e := range entries {
		doc.SystemSettings[e.Key] = ExportedSetting{
			Value:       e.Value,
			Type:        e.Type,
			Category:    e.Category,
			Description: e.Description,
			IsPublic:    e.IsPublic,
		}
	}

	var rows []models.ModuleSetting
	if err := s.db.WithContext(ctx).Order("module, setting_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("export module settings: %w", err)
	}
	for _, row := range rows {
		v, err := Decode(row.Value, row.Type)
		if err != nil {
			v = row.Value
		}
		if doc.ModuleSettings[row.Module] == nil {
			doc.ModuleSettings[row.Module] = make(map[string]ExportedModuleSetting)
		}
		doc.ModuleSettings[row.Module][row.Key] = ExportedModuleSetting{Value: v, Type: NormalizeType(row.Type)}
	}
	return doc, nil
}

type ImportResult struct {
	SystemSettings int      `json:"system_settings"`
	ModuleSettings int      `json:"module_settings"`
	SkippedModules []string `json:"skipped_modules,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

type importItem struct {
	key         string
	value       any
	typ         string
	category    string
	description string
	public      *bool
}

// parseImportItem accepts the exported object form ({"value": ..., "type": ...})
// or a bare value.
func parseImportItem(key string, raw any) importItem {
	item := importItem{key: key, value: raw}
	obj, ok := raw.(map[string]any)
	if !ok {
		return item
	}
	v, ok := obj["value"]
	if !ok {
		return item
	}
	item.value = v
	item.typ, _ = obj["type"].(string)
	item.category, _ = obj["category"].(string)
	item.description, _ = obj["description"].(string)
	if p, ok := obj["is_public"].(bool); ok {
		item.public = &p
	}
	return item
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Import overwrites every setting in an export document. Values are not
// run through form validation; import is a trusted administrative path.
// Timezone and currency must still be usable by the runtime. The whole
// document lands or nothing does.
func (s *SettingsService) Import(ctx context.Context, actor Actor, data []byte) (result *ImportResult, err error) {
	defer func() { observe("import", err) }()

	if !actor.Can(PermissionManageSettings) {
		return nil, &ForbiddenError{Target: "system", Required: []string{PermissionManageSettings}}
	}
	if len(data) > MaxImportSize {
		return nil, &ImportFormatError{Reason: "the file may not be greater than 2048 kilobytes"}
	}

	var doc map[string]any
	if err := importAPI.Unmarshal(data, &doc); err != nil {
		return nil, &ImportFormatError{Reason: "the file is not valid JSON"}
	}
	system, ok := doc["system_settings"].(map[string]any)
	if !ok {
		return nil, &ImportFormatError{Reason: "the file must contain a system_settings object"}
	}
	var modules map[string]any
	if raw, present := doc["module_settings"]; present && raw != nil {
		if modules, ok = raw.(map[string]any); !ok {
			return nil, &ImportFormatError{Reason: "module_settings must be an object"}
		}
	}

	result = &ImportResult{}
	var moduleNames []string
	for _, name := range sortedKeys(modules) {
		if _, err := s.registry.Module(name); err != nil {
			result.SkippedModules = append(result.SkippedModules, name)
			continue
		}
		if _, ok := modules[name].(map[string]any); !ok {
			return nil, &ImportFormatError{Reason: "module_settings." + name + " must be an object"}
		}
		moduleNames = append(moduleNames, name)
	}

	batchID := uuid.NewString()
	now := time.Now()
	touched := make(map[string][]string)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		store := s.store.WithTx(tx)
		var rows []models.SettingHistory

		for _, key := range sortedKeys(system) {
			item := parseImportItem(key, system[key])
			opts := []SetOption{WithType(item.typ), WithCategory(item.category), WithDescription(item.description)}
			if item.public != nil {
				opts = append(opts, WithPublic(*item.public))
			}
			change, err := store.Upsert(ctx, key, item.value, opts...)
			if err != nil {
				return err
			}
			rows = append(rows, newHistoryRow(change, models.HistoryActionImport, batchID, actor, now))
			result.SystemSettings++
		}

		moduleStore := s.modules.WithTx(tx)
		for _, name := range moduleNames {
			settings := modules[name].(map[string]any)
			for _, key := range sortedKeys(settings) {
				item := parseImportItem(key, settings[key])
				change, err := moduleStore.Upsert(ctx, name, key, item.value, item.typ, "")
				if err != nil {
					return err
				}
				rows = append(rows, newHistoryRow(change, models.HistoryActionImport, batchID, actor, now))
				result.ModuleSettings++
			}
		}
		if err := s.history.Record(ctx, tx, rows...); err != nil {
			return err
		}

		// categories are read back so side effects see where every
		// imported key ended up
		entries, err := store.Entries(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if _, ok := system[e.Key]; !ok {
				continue
			}
			if err := checkDomain(e.Category, e.Key, e.Value); err != nil {
				return err
			}
			touched[e.Category] = append(touched[e.Category], e.Key)
		}
		return nil
	})
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, &ImportFormatError{Reason: firstFieldError(ve)}
		}
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, s.persistenceFailure(actor, "settings.import", err)
	}

	if err := s.store.Invalidate(ctx); err != nil {
		logger.Warn().Err(err).Msg("[Settings] cache invalidation after import failed")
	}
	for category, keys := range touched {
		result.Warnings = append(result.Warnings, s.afterCommit(ctx, category, keys)...)
	}

	LogInfo("settings", "settings.import", "settings imported", metaOf(actor), result)
	logger.Info().Str("user", actor.Username).Int("system", result.SystemSettings).Int("module", result.ModuleSettings).
		Strs("skipped_modules", result.SkippedModules).Msg("[Settings] settings imported")
	return result, nil
}

func firstFieldError(ve *ValidationError) string {
	keys := make([]string, 0, len(ve.Fields))
	for k := range ve.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "invalid value"
	}
	msg := "invalid value"
	if msgs := ve.Fields[keys[0]]; len(msgs) > 0 {
		msg = msgs[0]
	}
	return keys[0] + ": " + msg
}

// --- history ---

func (s *SettingsService) History(ctx context.Context, actor Actor, f HistoryFilter) (*HistoryPage, error) {
	if !actor.Can(PermissionManageSettings) {
		return nil, &ForbiddenError{Target: "history", Required: []string{PermissionManageSettings}}
	}
	return s.history.List(ctx, f)
}

// KeyHistory returns the last changes of one system key, or of a module
// key when module is set.
func (s *SettingsService) KeyHistory(ctx context.Context, actor Actor, key, module string) ([]models.SettingHistory, error) {
	if module != "" {
		if _, err := s.authorizeModule(actor, module); err != nil {
			return nil, err
		}
	} else if !actor.Can(PermissionManageSettings) {
		return nil, &ForbiddenError{Target: "history", Required: []string{PermissionManageSettings}}
	}
	return s.history.ForKey(ctx, key, module, KeyHistoryLimit)
}

type HistoryExport struct {
	ExportedAt time.Time               `json:"exported_at"`
	Filter     HistoryFilter           `json:"filter"`
	Count      int                     `json:"count"`
	Items      []models.SettingHistory `json:"items"`
}

func (s *SettingsService) ExportHistory(ctx context.Context, actor Actor, f HistoryFilter) (*HistoryExport, error) {
	if !actor.Can(PermissionManageSettings) {
		return nil, &ForbiddenError{Target: "history", Required: []string{PermissionManageSettings}}
	}
	items, err := s.history.Export(ctx, f)
	if err != nil {
		return nil, err
	}
	f.Page, f.PageSize = 0, 0
	return &HistoryExport{ExportedAt: s.runtime.Now(), Filter: f, Count: len(items), Items: items}, nil
}
