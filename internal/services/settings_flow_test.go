package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/pkg/storage"
)

func TestRollback_RestoresOldValueAndAppends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	update(t, env, "general", map[string]any{"app_name": "A"})
	update(t, env, "general", map[string]any{"app_name": "B"})

	rows := historyRows(t, env.db, "app_name")
	target := rows[1] // A -> B

	res, err := env.svc.Rollback(ctx, admin(), target.ID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if res.Value != "A" || res.Key != "app_name" || res.SettingType != models.SettingTypeSystem {
		t.Errorf("result = %+v", res)
	}
	if got := get(t, env, "app_name"); got != "A" {
		t.Errorf("app_name = %v, expected A", got)
	}

	rows = historyRows(t, env.db, "app_name")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	last := rows[2]
	if deref(last.OldValue) != "B" || deref(last.NewValue) != "A" || last.Action != models.HistoryActionRollback {
		t.Errorf("rollback row = %s -> %s (%s)", deref(last.OldValue), deref(last.NewValue), last.Action)
	}
	if last.RolledBackFrom == nil || *last.RolledBackFrom != target.ID {
		t.Errorf("rolled_back_from = %v, expected %d", last.RolledBackFrom, target.ID)
	}
	if deref(rows[1].OldValue) != "A" || deref(rows[1].NewValue) != "B" {
		t.Error("the rolled back row was modified")
	}

	// the same row can be rolled back again
	if _, err := env.svc.Rollback(ctx, admin(), target.ID); err != nil {
		t.Fatalf("second Rollback: %v", err)
	}
	if n := len(historyRows(t, env.db, "app_name")); n != 4 {
		t.Errorf("expected 4 rows after second rollback, got %d", n)
	}

	// and further back in the chain
	if _, err := env.svc.Rollback(ctx, admin(), rows[0].ID); err != nil {
		t.Fatalf("Rollback first row: %v", err)
	}
	if got := get(t, env, "app_name"); got != "ERP" {
		t.Errorf("app_name = %v, expected ERP", got)
	}
}

func TestRollback_KeepsType(t *testing.T) {
	env := newTestEnv(t)
	update(t, env, "security", map[string]any{"session_lifetime": 30})
	rows := historyRows(t, env.db, "session_lifetime")

	if _, err := env.svc.Rollback(context.Background(), admin(), rows[0].ID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := get(t, env, "session_lifetime"); got != 120 {
		t.Errorf("session_lifetime = %#v, expected 120", got)
	}
}

func TestRollback_CurrencyRederivesSymbol(t *testing.T) {
	env := newTestEnv(t)
	update(t, env, "general", map[string]any{"default_currency": "GBP"})
	rows := historyRows(t, env.db, "default_currency")

	if _, err := env.svc.Rollback(context.Background(), admin(), rows[0].ID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if got := get(t, env, "currency_symbol"); got != "$" {
		t.Errorf("currency_symbol = %v, expected $", got)
	}
}

func TestRollback_ModuleSetting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.UpdateModule(ctx, admin(), "crm", map[string]any{"follow_up_days": 7}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}
	if _, err := env.svc.UpdateModule(ctx, admin(), "crm", map[string]any{"follow_up_days": 14}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}
	rows := historyRows(t, env.db, "follow_up_days")

	res, err := env.svc.Rollback(ctx, admin(), rows[1].ID)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if res.Module != "crm" || res.SettingType != models.SettingTypeModule {
		t.Errorf("result = %+v", res)
	}
	v, err := env.svc.modules.Get(ctx, "crm", "follow_up_days")
	if err != nil || v != 7 {
		t.Errorf("follow_up_days = %#v (%v), expected 7", v, err)
	}

	hrOnly := Actor{Username: "hana", Permissions: []string{"hr.settings"}}
	_, err = env.svc.Rollback(ctx, hrOnly, rows[1].ID)
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
}

func TestRollback_UnknownEntry(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Rollback(context.Background(), admin(), 9999)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestImport_OverwritesWithoutFormValidation(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("x", 150)
	doc := `{
		"system_settings": {
			"app_name": {"value": "` + long + `", "type": "string", "category": "general"},
			"mail_port": 2525
		},
		"module_settings": {
			"crm": {"follow_up_days": {"value": 120, "type": "integer"}},
			"billing": {"currency": "EUR"}
		}
	}`

	res, err := env.svc.Import(context.Background(), admin(), []byte(doc))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.SystemSettings != 2 || res.ModuleSettings != 1 {
		t.Errorf("counts = %d/%d", res.SystemSettings, res.ModuleSettings)
	}
	if len(res.SkippedModules) != 1 || res.SkippedModules[0] != "billing" {
		t.Errorf("skipped = %v", res.SkippedModules)
	}
	if got := get(t, env, "app_name"); got != long {
		t.Errorf("app_name not imported verbatim")
	}
	if got := get(t, env, "mail_port"); got != 2525 {
		t.Errorf("mail_port = %#v", got)
	}
	if v, _ := env.svc.modules.Get(context.Background(), "crm", "follow_up_days"); v != 120 {
		t.Errorf("crm.follow_up_days = %#v", v)
	}
	if got := env.svc.Mailer().Settings().Port; got != 2525 {
		t.Errorf("mailer port = %d, expected reconfiguration after import", got)
	}

	rows := historyRows(t, env.db, "app_name")
	if len(rows) != 1 || rows[0].Action != models.HistoryActionImport {
		t.Errorf("import history = %+v", rows)
	}
}

func TestImport_RejectsBadDocuments(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"system_settings": `},
		{"missing system settings", `{"module_settings": {}}`},
		{"system settings not object", `{"system_settings": [1, 2]}`},
		{"module settings not object", `{"system_settings": {}, "module_settings": "crm"}`},
		{"module entry not object", `{"system_settings": {}, "module_settings": {"crm": 3}}`},
		{"value of wrong type", `{"system_settings": {"mail_port": {"value": "many", "type": "integer"}}}`},
		{"too large", `{"system_settings": {"blob": "` + strings.Repeat("a", MaxImportSize) + `"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Import(context.Background(), admin(), []byte(tt.data))
			var ife *ImportFormatError
			if !errors.As(err, &ife) {
				t.Fatalf("expected ImportFormatError, got %v", err)
			}
		})
	}
	if got := get(t, env, "mail_port"); got != 587 {
		t.Errorf("mail_port = %#v, a rejected import must not write", got)
	}
}

func TestImport_IsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	doc := `{"system_settings": {"app_name": "Acme", "mail_port": {"value": "x", "type": "integer"}}}`

	if _, err := env.svc.Import(context.Background(), admin(), []byte(doc)); err == nil {
		t.Fatal("expected an error")
	}
	if got := get(t, env, "app_name"); got != "ERP" {
		t.Errorf("app_name = %v, expected the import to roll back", got)
	}
	if n := len(historyRows(t, env.db, "app_name")); n != 0 {
		t.Errorf("history rows = %d", n)
	}
}

func TestImport_RejectsUnusableRuntimeValues(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"unknown timezone", `{"system_settings": {"app_name": "Acme", "default_timezone": "Nowhere/City"}}`, "default_timezone"},
		{"unknown timezone with metadata", `{"system_settings": {"default_timezone": {"value": "Mars/Olympus", "type": "string", "category": "general"}}}`, "default_timezone"},
		{"currency without symbol", `{"system_settings": {"default_currency": "XYZ"}}`, "default_currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.Import(context.Background(), admin(), []byte(tt.data))
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("field = %q, expected %q", ce.Field, tt.field)
			}
			if got := get(t, env, "default_timezone"); got != "UTC" {
				t.Errorf("default_timezone = %v, expected the import to roll back", got)
			}
			if got := get(t, env, "app_name"); got != "ERP" {
				t.Errorf("app_name = %v, expected the import to roll back", got)
			}
			if n := len(historyRows(t, env.db, tt.field)); n != 0 {
				t.Errorf("history rows = %d", n)
			}
			if got := env.svc.Runtime().Location().String(); got != "UTC" {
				t.Errorf("runtime timezone = %s", got)
			}
		})
	}
}

func TestImport_RequiresManagePermission(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Import(context.Background(), Actor{Permissions: []string{"crm.settings"}}, []byte(`{"system_settings": {}}`))
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
}

func TestExportImport_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.UpdateModule(ctx, admin(), "hr", map[string]any{"annual_leave_days": 25}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}

	doc, err := env.svc.Export(ctx, admin())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if doc.Version != ExportVersion || doc.SystemSettings["mail_port"].Value != 587 {
		t.Errorf("export = %+v", doc.SystemSettings["mail_port"])
	}
	data, err := sonic.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	update(t, env, "general", map[string]any{"app_name": "Changed", "items_per_page": 50})
	if _, err := env.svc.UpdateModule(ctx, admin(), "hr", map[string]any{"annual_leave_days": 10}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}

	if _, err := env.svc.Import(ctx, admin(), data); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := get(t, env, "app_name"); got != "ERP" {
		t.Errorf("app_name = %v", got)
	}
	if got := get(t, env, "items_per_page"); got != 25 {
		t.Errorf("items_per_page = %#v", got)
	}
	if got := get(t, env, "allowed_ips"); got == nil {
		t.Error("allowed_ips lost")
	}
	if v, _ := env.svc.modules.Get(ctx, "hr", "annual_leave_days"); v != 25 {
		t.Errorf("hr.annual_leave_days = %#v", v)
	}
}

func TestResetModule_HistoryOnlyForChangedKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.ResetModule(ctx, admin(), "crm"); err != nil {
		t.Fatalf("first ResetModule: %v", err)
	}
	if _, err := env.svc.UpdateModule(ctx, admin(), "crm", map[string]any{"follow_up_days": 7}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}

	res, err := env.svc.ResetModule(ctx, admin(), "crm")
	if err != nil {
		t.Fatalf("ResetModule: %v", err)
	}
	if len(res.Changed) != 1 || res.Changed[0] != "follow_up_days" {
		t.Errorf("changed = %v", res.Changed)
	}

	var resets []models.SettingHistory
	env.db.Where("action = ? AND module = ?", models.HistoryActionReset, "crm").Order("id").Find(&resets)
	defs := len(NewCRMSettingsHandler().Definition())
	if len(resets) != defs+1 {
		t.Fatalf("reset rows = %d, expected %d", len(resets), defs+1)
	}
	last := resets[len(resets)-1]
	if last.SettingKey != "follow_up_days" || deref(last.OldValue) != "7" || deref(last.NewValue) != "3" {
		t.Errorf("last reset row = %s %s -> %s", last.SettingKey, deref(last.OldValue), deref(last.NewValue))
	}
}

func TestUpdateModule_ValidationAndPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.UpdateModule(ctx, admin(), "crm", map[string]any{"follow_up_days": 500})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n := len(historyRows(t, env.db, "follow_up_days")); n != 0 {
		t.Errorf("history rows = %d", n)
	}

	crmUser := Actor{Username: "carol", Permissions: []string{"crm.settings"}}
	if _, err := env.svc.UpdateModule(ctx, crmUser, "crm", map[string]any{"follow_up_days": 5}); err != nil {
		t.Errorf("crm.settings should be enough: %v", err)
	}
	_, err = env.svc.UpdateModule(ctx, crmUser, "wms", map[string]any{"low_stock_threshold": 5})
	var fe *ForbiddenError
	if !errors.As(err, &fe) {
		t.Errorf("expected ForbiddenError, got %v", err)
	}
	_, err = env.svc.UpdateModule(ctx, admin(), "billing", nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateModule_IntegerInputs(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]any
		wantErr string
		key     string
		want    any
	}{
		{"overflowing float", map[string]any{"reorder_quantity": float64(1e20)}, "reorder_quantity", "reorder_quantity", 50},
		{"negative overflow", map[string]any{"low_stock_threshold": float64(-1e20)}, "low_stock_threshold", "low_stock_threshold", 10},
		{"cleared optional field", map[string]any{"low_stock_threshold": ""}, "", "low_stock_threshold", 0},
		{"whole float", map[string]any{"reorder_quantity": float64(75)}, "", "reorder_quantity", 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()

			_, err := env.svc.UpdateModule(ctx, admin(), "wms", tt.values)
			if tt.wantErr != "" {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if _, ok := ve.Fields[tt.wantErr]; !ok {
					t.Errorf("errors = %v, expected one for %s", ve.Fields, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("UpdateModule: %v", err)
			}
			view, err := env.svc.ModuleView(ctx, admin(), "wms")
			if err != nil {
				t.Fatalf("ModuleView: %v", err)
			}
			if v := view.Values[tt.key]; v != tt.want {
				t.Errorf("%s = %#v, expected %#v", tt.key, v, tt.want)
			}
		})
	}
}

func TestModuleView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.UpdateModule(ctx, admin(), "wms", map[string]any{"valuation_method": "average"}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}

	view, err := env.svc.ModuleView(ctx, admin(), "wms")
	if err != nil {
		t.Fatalf("ModuleView: %v", err)
	}
	if view.Values["valuation_method"] != "average" || view.Defaults["valuation_method"] != "fifo" {
		t.Errorf("values = %v defaults = %v", view.Values, view.Defaults)
	}
	if len(view.Recent) != 1 || view.View != "wms.settings" {
		t.Errorf("view = %s recent = %d", view.View, len(view.Recent))
	}

	form, err := env.svc.ModuleForm(ctx, admin(), "wms")
	if err != nil {
		t.Fatalf("ModuleForm: %v", err)
	}
	if form.View != "wms.settings.form" || len(form.Fields) == 0 {
		t.Errorf("form = %+v", form)
	}
}

func TestBranding_UploadAndColorsOnlyUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	png := []byte("\x89PNG\r\n\x1a\nfake")

	_, err := env.svc.UpdateCategory(ctx, admin(), UpdateCategoryRequest{
		Category: "branding",
		Uploads:  []Upload{{Field: "logo_light", Filename: "logo.png", Data: png}},
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if got := get(t, env, "logo_light"); got != LightLogoPath {
		t.Errorf("logo_light = %v", got)
	}
	for _, p := range []string{LightLogoPath, LogoPath} {
		data, err := env.assets.Get(ctx, p)
		if err != nil || string(data) != string(png) {
			t.Errorf("%s not written: %v", p, err)
		}
	}
	if len(env.styles.calls) != 0 {
		t.Error("theme must not be rebuilt without a color change")
	}

	res := update(t, env, "branding", map[string]any{"primary_color": "#ff0000", "logo_light": ""})
	if got := get(t, env, "logo_light"); got != LightLogoPath {
		t.Errorf("colors-only save cleared logo_light: %v", got)
	}
	for _, k := range res.Saved {
		if k == "logo_light" {
			t.Error("logo_light must not be part of a colors-only save")
		}
	}
	if len(env.styles.calls) != 1 || env.styles.calls[0]["primary_color"] != "#ff0000" {
		t.Errorf("style compiler calls = %v", env.styles.calls)
	}
}

type failingStore struct{ storage.Store }

func (failingStore) Put(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}

func TestBranding_FilesFollowTheTransaction(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	tests := []struct {
		name       string
		breakDB    bool
		breakStore bool
		wantFile   bool
		wantStored bool
	}{
		{"commit fails", true, false, false, false},
		{"store fails", false, true, false, true},
		{"both succeed", false, false, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			if tt.breakDB {
				if err := env.db.Migrator().DropTable(&models.SettingHistory{}); err != nil {
					t.Fatalf("drop history: %v", err)
				}
			}
			if tt.breakStore {
				env.svc.branding = NewBrandingAssets(failingStore{})
			}

			res, err := env.svc.UpdateCategory(ctx, admin(), UpdateCategoryRequest{
				Category: "branding",
				Uploads:  []Upload{{Field: "logo_light", Filename: "logo.png", Data: png}},
			})
			if tt.breakDB {
				var pe *PersistenceError
				if !errors.As(err, &pe) {
					t.Fatalf("expected PersistenceError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("UpdateCategory: %v", err)
			}
			if tt.breakStore && len(res.Warnings) != 1 {
				t.Errorf("warnings = %v", res.Warnings)
			}

			_, getErr := env.assets.Get(ctx, LightLogoPath)
			if (getErr == nil) != tt.wantFile {
				t.Errorf("file written = %v, expected %v", getErr == nil, tt.wantFile)
			}
			stored := get(t, env, "logo_light") == LightLogoPath
			if stored != tt.wantStored {
				t.Errorf("logo_light stored = %v, expected %v", stored, tt.wantStored)
			}
		})
	}
}

func TestBranding_StyleFailureIsAWarning(t *testing.T) {
	env := newTestEnv(t)
	env.styles.err = errors.New("disk full")

	res := update(t, env, "branding", map[string]any{"primary_color": "#00ff00"})
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if got := get(t, env, "primary_color"); got != "#00ff00" {
		t.Errorf("primary_color = %v", got)
	}
}

func TestHistoryAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	update(t, env, "general", map[string]any{"app_name": "Acme"})
	if _, err := env.svc.UpdateModule(ctx, admin(), "crm", map[string]any{"follow_up_days": 7}); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}

	crmUser := Actor{Permissions: []string{"crm.settings"}}
	if _, err := env.svc.History(ctx, crmUser, HistoryFilter{}); err == nil {
		t.Error("history listing needs settings.manage")
	}
	items, err := env.svc.KeyHistory(ctx, crmUser, "follow_up_days", "crm")
	if err != nil || len(items) != 1 {
		t.Errorf("module key history = %d rows, %v", len(items), err)
	}
	if _, err := env.svc.KeyHistory(ctx, crmUser, "app_name", ""); err == nil {
		t.Error("system key history needs settings.manage")
	}

	export, err := env.svc.ExportHistory(ctx, admin(), HistoryFilter{SettingType: models.SettingTypeSystem, Page: 3})
	if err != nil {
		t.Fatalf("ExportHistory: %v", err)
	}
	if export.Count != 1 || export.Items[0].SettingKey != "app_name" || export.Filter.Page != 0 {
		t.Errorf("export = %+v", export)
	}
}
