package models

import "time"

// ModuleSetting is a setting owned by one business module. The pair
// (module, key) is unique, so modules never collide.
type ModuleSetting struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Module      string    `gorm:"uniqueIndex:idx_module_setting_key;size:50;not null" json:"module"`
	Key         string    `gorm:"column:setting_key;uniqueIndex:idx_module_setting_key;size:100;not null" json:"key"`
	Value       string    `gorm:"type:text" json:"value"`
	Type        string    `gorm:"size:20;default:string" json:"type"`
	Description string    `gorm:"size:500" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ModuleSetting) TableName() string { return "module_settings" }
