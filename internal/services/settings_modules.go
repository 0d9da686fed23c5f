package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/pkg/logger"
)

// ModuleView is the full settings page of a module.
type ModuleView struct {
	Module   ModuleEntry             `json:"module"`
	View     string                  `json:"view"`
	Fields   []FieldDescriptor       `json:"fields"`
	Values   map[string]any          `json:"values"`
	Defaults map[string]any          `json:"defaults"`
	Recent   []models.SettingHistory `json:"recent_changes"`
}

// ModuleForm is the form fragment of a module.
type ModuleForm struct {
	Module string            `json:"module"`
	View   string            `json:"view"`
	Fields []FieldDescriptor `json:"fields"`
	Values map[string]any    `json:"values"`
}

const moduleRecentChanges = 10

func (s *SettingsService) authorizeModule(actor Actor, name string) (ModuleEntry, error) {
	entry, err := s.registry.Module(name)
	if err != nil {
		return ModuleEntry{}, err
	}
	if !actor.CanAny(entry.Permissions) {
		return ModuleEntry{}, &ForbiddenError{Target: entry.Label, Required: entry.Permissions}
	}
	return entry, nil
}

func (s *SettingsService) ModuleView(ctx context.Context, actor Actor, name string) (*ModuleView, error) {
	entry, err := s.authorizeModule(actor, name)
	if err != nil {
		return nil, err
	}
	values, err := entry.Handler.CurrentValues(ctx, s.modules)
	if err != nil {
		return nil, err
	}
	page, err := s.history.List(ctx, HistoryFilter{SettingType: models.SettingTypeModule, Module: entry.Name, PageSize: moduleRecentChanges})
	if err != nil {
		return nil, err
	}
	return &ModuleView{
		Module:   entry,
		View:     entry.View,
		Fields:   entry.Handler.Definition(),
		Values:   values,
		Defaults: entry.Handler.DefaultValues(),
		Recent:   page.Items,
	}, nil
}

func (s *SettingsService) ModuleForm(ctx context.Context, actor Actor, name string) (*ModuleForm, error) {
	entry, err := s.authorizeModule(actor, name)
	if err != nil {
		return nil, err
	}
	values, err := entry.Handler.CurrentValues(ctx, s.modules)
	if err != nil {
		return nil, err
	}
	return &ModuleForm{
		Module: entry.Name,
		View:   entry.Handler.ViewIdentifier() + ".form",
		Fields: entry.Handler.Definition(),
		Values: values,
	}, nil
}

// UpdateModule validates the submitted keys with the module's handler and
// saves them.
func (s *SettingsService) UpdateModule(ctx context.Context, actor Actor, name string, values map[string]any) (result *UpdateResult, err error) {
	defer func() { observe("module", err) }()

	entry, err := s.authorizeModule(actor, name)
	if err != nil {
		return nil, err
	}

	payload := make(map[string]any, len(values))
	for k, v := range values {
		payload[k] = v
	}
	coerceStructuredValues(entry.Handler.Definition(), payload)

	if res := entry.Handler.Validate(payload); !res.Valid {
		return nil, &ValidationError{Fields: res.Errors}
	}

	changes, err := s.commitModule(ctx, actor, models.HistoryActionUpdate, entry.Name, nil, false,
		func(store *ModuleStore) ([]Change, error) {
			return entry.Handler.Save(ctx, store, payload)
		})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("module", entry.Name).Str("user", actor.Username).Int("saved", len(changes)).
		Msg("[Settings] module settings updated")
	return newUpdateResult(changes), nil
}

// ResetModule overwrites every defined key with its default. History is
// written for the keys whose value actually changed.
func (s *SettingsService) ResetModule(ctx context.Context, actor Actor, name string) (result *UpdateResult, err error) {
	defer func() { observe("module", err) }()

	entry, err := s.authorizeModule(actor, name)
	if err != nil {
		return nil, err
	}
	defaults := entry.Handler.DefaultValues()

	changes, err := s.commitModule(ctx, actor, models.HistoryActionReset, entry.Name, nil, true,
		func(store *ModuleStore) ([]Change, error) {
			return entry.Handler.Save(ctx, store, defaults)
		})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("module", entry.Name).Str("user", actor.Username).Msg("[Settings] module settings reset")
	return newUpdateResult(changes), nil
}

// commitModule runs apply and the history rows of its changes in one
// transaction. With onlyChanged set, writes that kept the stored value are
// not logged.
func (s *SettingsService) commitModule(
	ctx context.Context,
	actor Actor,
	action, module string,
	rolledBackFrom *uint,
	onlyChanged bool,
	apply func(store *ModuleStore) ([]Change, error),
) ([]Change, error) {
	var changes []Change
	batchID := uuid.NewString()
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		changes, err = apply(s.modules.WithTx(tx))
		if err != nil {
			return err
		}
		rows := make([]models.SettingHistory, 0, len(changes))
		for _, c := range changes {
			if onlyChanged && !c.Changed() {
				continue
			}
			row := newHistoryRow(c, action, batchID, actor, now)
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
		return nil, s.persistenceFailure(actor, module+"."+action, err)
	}
	return changes, nil
}
