package services

import (
	"sort"
	"sync"
)

// PermissionManageSettings guards every system category, history and
// export/import.
const PermissionManageSettings = "settings.manage"

// CategoryEntry registers a system settings category.
type CategoryEntry struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	Order       int      `json:"order"`
	Permissions []string `json:"permissions"`
}

// ModuleEntry registers a business module's settings handler.
type ModuleEntry struct {
	Name        string                `json:"name"`
	Label       string                `json:"label"`
	Description string                `json:"description"`
	Icon        string                `json:"icon"`
	Order       int                   `json:"order"`
	Permissions []string              `json:"permissions"`
	View        string                `json:"view"`
	Handler     ModuleSettingsHandler `json:"-"`
}

// Registry resolves category and module names. It is populated once at
// startup and read concurrently afterwards.
type Registry struct {
	mu         sync.RWMutex
	categories map[string]CategoryEntry
	modules    map[string]ModuleEntry
}

func NewRegistry() *Registry {
	return &Registry{
		categories: make(map[string]CategoryEntry),
		modules:    make(map[string]ModuleEntry),
	}
}

func (r *Registry) RegisterCategory(entry CategoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[entry.Name] = entry
}

func (r *Registry) RegisterModule(entry ModuleEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.View == "" && entry.Handler != nil {
		entry.View = entry.Handler.ViewIdentifier()
	}
	r.modules[entry.Name] = entry
}

func (r *Registry) Category(name string) (CategoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.categories[name]
	if !ok {
		return CategoryEntry{}, &NotFoundError{Resource: "settings category", Name: name}
	}
	return entry, nil
}

// Module resolves a module. A module registered without a handler is a
// wiring bug and aborts the operation.
func (r *Registry) Module(name string) (ModuleEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.modules[name]
	if !ok {
		return ModuleEntry{}, &NotFoundError{Resource: "settings module", Name: name}
	}
	if entry.Handler == nil {
		return ModuleEntry{}, &ConfigurationError{Message: "module " + name + " has no settings handler"}
	}
	return entry, nil
}

func (r *Registry) Categories() []CategoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CategoryEntry, 0, len(r.categories))
	for _, c := range r.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) Modules() []ModuleEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModuleEntry, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DefaultRegistry returns the built-in categories and modules.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	manage := []string{PermissionManageSettings}

	r.RegisterCategory(CategoryEntry{Name: "general", Label: "General", Icon: "settings", Order: 1,
		Description: "Application name, locale, timezone and currency", Permissions: manage})
	r.RegisterCategory(CategoryEntry{Name: "email", Label: "Email", Icon: "mail", Order: 2,
		Description: "Outgoing mail transport and sender identity", Permissions: manage})
	r.RegisterCategory(CategoryEntry{Name: "branding", Label: "Branding", Icon: "palette", Order: 3,
		Description: "Logos, favicon and theme colors", Permissions: manage})
	r.RegisterCategory(CategoryEntry{Name: "security", Label: "Security", Icon: "shield", Order: 4,
		Description: "Sessions, passwords and access restrictions", Permissions: manage})

	r.RegisterModule(ModuleEntry{Name: "crm", Label: "CRM", Icon: "users", Order: 1,
		Description: "Leads, pipeline and assignment", Permissions: []string{"crm.settings", PermissionManageSettings},
		Handler: NewCRMSettingsHandler()})
	r.RegisterModule(ModuleEntry{Name: "hr", Label: "Human Resources", Icon: "briefcase", Order: 2,
		Description: "Work week, leave and overtime", Permissions: []string{"hr.settings", PermissionManageSettings},
		Handler: NewHRSettingsHandler()})
	r.RegisterModule(ModuleEntry{Name: "wms", Label: "Warehouse", Icon: "package", Order: 3,
		Description: "Warehouses, stock levels and valuation", Permissions: []string{"wms.settings", PermissionManageSettings},
		Handler: NewWMSSettingsHandler()})

	return r
}
