package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/bytedance/sonic"
)

// StringList is a []string persisted as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	s, err := sonic.MarshalString([]string(l))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return sonic.Unmarshal(raw, (*[]string)(l))
}

// SettingMetadata describes one field of a settings category: how it is
// rendered and which rules validate it.
type SettingMetadata struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Category        string     `gorm:"uniqueIndex:idx_metadata_category_key;size:50;not null" json:"category"`
	Key             string     `gorm:"column:setting_key;uniqueIndex:idx_metadata_category_key;size:100;not null" json:"key"`
	Label           string     `gorm:"size:200" json:"label"`
	Type            string     `gorm:"size:20;default:string" json:"type"`
	InputType       string     `gorm:"size:30;default:text" json:"input_type"` // text, number, email, password, select, toggle, color, file, textarea, tags
	Options         StringList `gorm:"type:text" json:"options"`
	ValidationRules StringList `gorm:"type:text" json:"validation_rules"`
	HelpText        string     `gorm:"size:500" json:"help_text"`
	SortOrder       int        `gorm:"default:0" json:"sort_order"`
	IsRequired      bool       `gorm:"default:false" json:"is_required"`
	DefaultValue    string     `gorm:"type:text" json:"default_value"`
}

func (SettingMetadata) TableName() string { return "setting_metadata" }
