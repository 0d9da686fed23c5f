package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestHistoryHandler_ListAndRollback(t *testing.T) {
	env := newTestEnv(t)
	r := env.router("*")

	for _, name := range []string{"First", "Second"} {
		if w := doJSON(t, r, http.MethodPost, "/api/settings/system/general", map[string]any{"app_name": name}); w.Code != http.StatusOK {
			t.Fatalf("update status = %d", w.Code)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/api/settings/history?key=app_name&page_size=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, body %s", w.Code, w.Body.String())
	}
	page := decode(t, w).Data
	if page["total"] != float64(2) {
		t.Fatalf("total = %v", page["total"])
	}
	items := page["items"].([]any)
	latest := items[0].(map[string]any)
	if latest["new_value"] != "Second" {
		t.Errorf("newest entry = %v", latest)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/settings/history/%v/rollback", latest["id"]), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rollback status = %d, body %s", w.Code, w.Body.String())
	}
	if got := decode(t, w).Data["value"]; got != "First" {
		t.Errorf("rolled back to %v", got)
	}

	w = doJSON(t, r, http.MethodGet, "/api/settings/history/key/app_name", nil)
	keyItems := decode(t, w).Data["items"].([]any)
	if len(keyItems) != 3 {
		t.Errorf("key history has %d entries, expected 3", len(keyItems))
	}
}

func TestHistoryHandler_RollbackErrors(t *testing.T) {
	env := newTestEnv(t)
	r := env.router("*")

	if w := doJSON(t, r, http.MethodPost, "/api/settings/history/abc/rollback", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/settings/history/999/rollback", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", w.Code)
	}
}

func TestHistoryHandler_Export(t *testing.T) {
	env := newTestEnv(t)
	r := env.router("*")
	doJSON(t, r, http.MethodPost, "/api/settings/system/general", map[string]any{"app_name": "Acme"})

	w := doJSON(t, r, http.MethodGet, "/api/settings/history/export?type=system", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "settings-history-") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !strings.Contains(w.Body.String(), `"setting_key": "app_name"`) {
		t.Errorf("export body missing the change: %s", w.Body.String())
	}
}

func TestHistoryHandler_RequiresManage(t *testing.T) {
	env := newTestEnv(t)
	w := doJSON(t, env.router("crm.settings"), http.MethodGet, "/api/settings/history", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, expected 403", w.Code)
	}
}
