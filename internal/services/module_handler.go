package services

import (
	"context"
)

// ValidationResult is the outcome of ModuleSettingsHandler.Validate.
type ValidationResult struct {
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// ModuleSettingsHandler is implemented by every business module that
// exposes settings. The orchestrator only talks to modules through it.
type ModuleSettingsHandler interface {
	// Definition lists the module's fields in display order.
	Definition() []FieldDescriptor
	// CurrentValues returns defaults overlaid with stored values.
	CurrentValues(ctx context.Context, store *ModuleStore) (map[string]any, error)
	DefaultValues() map[string]any
	// Validate checks the keys present in data; absent keys are not required.
	Validate(data map[string]any) ValidationResult
	// Save persists the defined keys present in data and reports each write.
	Save(ctx context.Context, store *ModuleStore, data map[string]any) ([]Change, error)
	// ViewIdentifier names the template a front end renders the form with.
	ViewIdentifier() string
}

// CrossFieldRule validates relationships between fields submitted together.
type CrossFieldRule func(data map[string]any) map[string][]string

// BaseModuleHandler implements ModuleSettingsHandler from a field list.
// Modules embed it and add cross-field rules.
type BaseModuleHandler struct {
	Module string
	Fields []FieldDescriptor
	View   string
	Rules  []CrossFieldRule
}

func (h *BaseModuleHandler) Definition() []FieldDescriptor {
	out := make([]FieldDescriptor, len(h.Fields))
	copy(out, h.Fields)
	SortFields(out)
	return out
}

func (h *BaseModuleHandler) DefaultValues() map[string]any {
	out := make(map[string]any, len(h.Fields))
	for _, f := range h.Fields {
		out[f.Key] = f.Default
	}
	return out
}

func (h *BaseModuleHandler) CurrentValues(ctx context.Context, store *ModuleStore) (map[string]any, error) {
	stored, err := store.All(ctx, h.Module)
	if err != nil {
		return nil, err
	}
	values := h.DefaultValues()
	for _, f := range h.Fields {
		if v, ok := stored[f.Key]; ok {
			values[f.Key] = v
		}
	}
	return values, nil
}

func (h *BaseModuleHandler) Validate(data map[string]any) ValidationResult {
	errs := ValidateFields(h.Fields, data)

	for _, rule := range h.Rules {
		for field, msgs := range rule(data) {
			if _, failed := errs[field]; failed {
				continue
			}
			errs[field] = append(errs[field], msgs...)
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func (h *BaseModuleHandler) Save(ctx context.Context, store *ModuleStore, data map[string]any) ([]Change, error) {
	var changes []Change
	for _, f := range h.Definition() {
		v, ok := data[f.Key]
		if !ok {
			continue
		}
		change, err := store.Upsert(ctx, h.Module, f.Key, v, f.Type, f.Label)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func (h *BaseModuleHandler) ViewIdentifier() string {
	if h.View != "" {
		return h.View
	}
	return h.Module + ".settings"
}
