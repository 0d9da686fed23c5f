package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/models"
)

// ModuleStore reads and writes module-qualified settings.
type ModuleStore struct {
	db *gorm.DB
}

func NewModuleStore(db *gorm.DB) *ModuleStore {
	return &ModuleStore{db: db}
}

func (s *ModuleStore) WithTx(tx *gorm.DB) *ModuleStore {
	return &ModuleStore{db: tx}
}

// Rows returns the stored rows of module ordered by key.
func (s *ModuleStore) Rows(ctx context.Context, module string) ([]models.ModuleSetting, error) {
	var rows []models.ModuleSetting
	if err := s.db.WithContext(ctx).Where("module = ?", module).Order("setting_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load %s settings: %w", module, err)
	}
	return rows, nil
}

// All returns the decoded settings of module.
func (s *ModuleStore) All(ctx context.Context, module string) (map[string]any, error) {
	rows, err := s.Rows(ctx, module)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		v, err := Decode(row.Value, row.Type)
		if err != nil {
			v = row.Value
		}
		out[row.Key] = v
	}
	return out, nil
}

// Get returns the decoded value of module.key.
func (s *ModuleStore) Get(ctx context.Context, module, key string) (any, error) {
	var row models.ModuleSetting
	err := s.db.WithContext(ctx).Where("module = ? AND setting_key = ?", module, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "module setting", Name: module + "." + key}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s.%s: %w", module, key, err)
	}
	return Decode(row.Value, row.Type)
}

// Modules lists every module that has stored settings.
func (s *ModuleStore) Modules(ctx context.Context) ([]string, error) {
	var modules []string
	if err := s.db.WithContext(ctx).Model(&models.ModuleSetting{}).Distinct("module").Order("module").Pluck("module", &modules).Error; err != nil {
		return nil, err
	}
	return modules, nil
}

// Upsert writes module.key with the given type and reports the change.
// An empty typ keeps the stored type or infers one.
func (s *ModuleStore) Upsert(ctx context.Context, module, key string, value any, typ, description string) (Change, error) {
	var row models.ModuleSetting
	err := s.db.WithContext(ctx).Where("module = ? AND setting_key = ?", module, key).First(&row).Error
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Change{}, fmt.Errorf("read %s.%s: %w", module, key, err)
	}

	if typ == "" && exists {
		typ = row.Type
	}
	if typ == "" {
		typ = InferType(value)
	}
	typ = NormalizeType(typ)

	encoded, err := Encode(value, typ)
	if err != nil {
		return Change{}, newFieldError(key, err.Error())
	}

	change := Change{SettingType: models.SettingTypeModule, Module: module, Key: key, Type: typ, New: encoded}
	if exists {
		old := row.Value
		change.Old = &old
		updates := map[string]interface{}{"value": encoded, "type": typ}
		if description != "" {
			updates["description"] = description
		}
		if err := s.db.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
			return Change{}, fmt.Errorf("update %s.%s: %w", module, key, err)
		}
		return change, nil
	}

	row = models.ModuleSetting{Module: module, Key: key, Value: encoded, Type: typ, Description: description}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Change{}, fmt.Errorf("create %s.%s: %w", module, key, err)
	}
	return change, nil
}
