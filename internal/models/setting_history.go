package models

import "time"

const (
	HistoryActionUpdate   = "update"
	HistoryActionRollback = "rollback"
	HistoryActionReset    = "reset"
	HistoryActionImport   = "import"

	SettingTypeSystem = "system"
	SettingTypeModule = "module"
)

// SettingHistory is one append-only audit row per applied setting change.
// Rows written by the same request share a BatchID.
type SettingHistory struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	BatchID        string    `gorm:"size:36;index" json:"batch_id"`
	Action         string    `gorm:"size:20;index" json:"action"`
	SettingType    string    `gorm:"size:20;index" json:"setting_type"`
	SettingKey     string    `gorm:"size:100;index" json:"setting_key"`
	Module         *string   `gorm:"size:50;index" json:"module"`
	ValueType      string    `gorm:"size:20" json:"value_type"`
	OldValue       *string   `gorm:"type:text" json:"old_value"`
	NewValue       *string   `gorm:"type:text" json:"new_value"`
	ChangedBy      *uint     `gorm:"index" json:"changed_by"`
	ChangedByName  string    `gorm:"size:100" json:"changed_by_name"`
	ChangedAt      time.Time `gorm:"index" json:"changed_at"`
	IPAddress      string    `gorm:"size:45" json:"ip_address"`
	UserAgent      string    `gorm:"size:500" json:"user_agent"`
	RolledBackFrom *uint     `json:"rolled_back_from,omitempty"`
}

func (SettingHistory) TableName() string { return "setting_histories" }
