package services

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/models"
)

// FieldDescriptor describes one setting field: rendering hints, type,
// validation rules and default value.
type FieldDescriptor struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	Type      string   `json:"type"`
	InputType string   `json:"input_type"`
	Options   []string `json:"options,omitempty"`
	Rules     []string `json:"rules,omitempty"`
	HelpText  string   `json:"help_text,omitempty"`
	SortOrder int      `json:"sort_order"`
	Required  bool     `json:"required"`
	Default   any      `json:"default"`
}

func descriptorFromModel(m models.SettingMetadata) FieldDescriptor {
	typ := NormalizeType(m.Type)
	def, err := Decode(m.DefaultValue, typ)
	if err != nil {
		def = m.DefaultValue
	}
	return FieldDescriptor{
		Key:       m.Key,
		Label:     m.Label,
		Type:      typ,
		InputType: m.InputType,
		Options:   []string(m.Options),
		Rules:     []string(m.ValidationRules),
		HelpText:  m.HelpText,
		SortOrder: m.SortOrder,
		Required:  m.IsRequired,
		Default:   def,
	}
}

// SortFields orders descriptors by sort order, then key.
func SortFields(fields []FieldDescriptor) {
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].SortOrder != fields[j].SortOrder {
			return fields[i].SortOrder < fields[j].SortOrder
		}
		return fields[i].Key < fields[j].Key
	})
}

// FieldMap indexes descriptors by key.
func FieldMap(fields []FieldDescriptor) map[string]FieldDescriptor {
	out := make(map[string]FieldDescriptor, len(fields))
	for _, f := range fields {
		out[f.Key] = f
	}
	return out
}

// MetadataRegistry serves per-category field descriptors from setting_metadata.
type MetadataRegistry struct {
	db *gorm.DB
}

func NewMetadataRegistry(db *gorm.DB) *MetadataRegistry {
	return &MetadataRegistry{db: db}
}

// GetCategoryMetadata returns the descriptors of category ordered for display.
// An unknown category yields an empty list.
func (r *MetadataRegistry) GetCategoryMetadata(ctx context.Context, category string) ([]FieldDescriptor, error) {
	var rows []models.SettingMetadata
	if err := r.db.WithContext(ctx).Where("category = ?", category).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load %s metadata: %w", category, err)
	}
	fields := make([]FieldDescriptor, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, descriptorFromModel(row))
	}
	SortFields(fields)
	return fields, nil
}

// AllFields returns the descriptors of every category keyed by setting key.
func (r *MetadataRegistry) AllFields(ctx context.Context) (map[string]FieldDescriptor, error) {
	var rows []models.SettingMetadata
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	out := make(map[string]FieldDescriptor, len(rows))
	for _, row := range rows {
		out[row.Key] = descriptorFromModel(row)
	}
	return out, nil
}

// FindField looks key up across all categories. It is used when a setting
// is restored outside of a category form.
func (r *MetadataRegistry) FindField(ctx context.Context, key string) (*FieldDescriptor, string, error) {
	var row models.SettingMetadata
	err := r.db.WithContext(ctx).Where("setting_key = ?", key).Limit(1).Find(&row).Error
	if err != nil {
		return nil, "", err
	}
	if row.ID == 0 {
		return nil, "", nil
	}
	f := descriptorFromModel(row)
	return &f, row.Category, nil
}

// BuildRules returns the rule list of every payload key that has metadata.
// Keys absent from the payload are not validated, so partial updates are
// allowed. The first rule is "required" or "nullable" from the field flag.
func BuildRules(fields []FieldDescriptor, payload map[string]any) map[string][]string {
	rules := make(map[string][]string)
	for _, f := range fields {
		if _, ok := payload[f.Key]; !ok {
			continue
		}
		lead := "nullable"
		if f.Required {
			lead = "required"
		}
		list := make([]string, 0, len(f.Rules)+1)
		list = append(list, lead)
		for _, r := range f.Rules {
			if r != "required" && r != "nullable" {
				list = append(list, r)
			}
		}
		rules[f.Key] = list
	}
	return rules
}

// ValidateFields validates the metadata-covered keys of payload.
func ValidateFields(fields []FieldDescriptor, payload map[string]any) map[string][]string {
	labels := make(map[string]string, len(fields))
	for _, f := range fields {
		labels[f.Key] = f.Label
	}
	return ValidateRules(payload, BuildRules(fields, payload), labels)
}
