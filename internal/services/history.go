package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/metrics"
	"github.com/huangang/erpsettings/internal/models"
)

// KeyHistoryLimit is the number of rows returned for one key.
const KeyHistoryLimit = 20

// HistoryFilter narrows History, ExportHistory and List.
type HistoryFilter struct {
	Page        int    `form:"page" json:"page,omitempty"`
	PageSize    int    `form:"page_size" json:"page_size,omitempty"`
	SettingType string `form:"type" json:"type,omitempty"`
	Module      string `form:"module" json:"module,omitempty"`
	Key         string `form:"key" json:"key,omitempty"`
	UserID      *uint  `form:"user_id" json:"user_id,omitempty"`
	Action      string `form:"action" json:"action,omitempty"`
	StartDate   string `form:"start_date" json:"start_date,omitempty"` // YYYY-MM-DD, inclusive
	EndDate     string `form:"end_date" json:"end_date,omitempty"`     // YYYY-MM-DD, inclusive
}

type HistoryPage struct {
	Total    int64                   `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
	Items    []models.SettingHistory `json:"items"`
}

// HistoryLog is the append-only audit trail of setting changes. It has no
// update or delete path.
type HistoryLog struct {
	db *gorm.DB
}

func NewHistoryLog(db *gorm.DB) *HistoryLog {
	return &HistoryLog{db: db}
}

// newHistoryRow builds the audit row of change on behalf of actor.
func newHistoryRow(change Change, action, batchID string, actor Actor, at time.Time) models.SettingHistory {
	row := models.SettingHistory{
		BatchID:       batchID,
		Action:        action,
		SettingType:   change.SettingType,
		SettingKey:    change.Key,
		ValueType:     change.Type,
		OldValue:      change.Old,
		NewValue:      &change.New,
		ChangedBy:     actor.UserID,
		ChangedByName: actor.Username,
		ChangedAt:     at,
		IPAddress:     actor.IP,
		UserAgent:     actor.UserAgent,
	}
	if change.Module != "" {
		module := change.Module
		row.Module = &module
	}
	return row
}

// Record appends rows inside tx. A nil tx writes outside a transaction.
func (h *HistoryLog) Record(ctx context.Context, tx *gorm.DB, rows ...models.SettingHistory) error {
	if len(rows) == 0 {
		return nil
	}
	db := tx
	if db == nil {
		db = h.db
	}
	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("write setting history: %w", err)
	}
	metrics.RecordHistory(rows[0].Action, len(rows))
	return nil
}

func (h *HistoryLog) Find(ctx context.Context, id uint) (*models.SettingHistory, error) {
	var row models.SettingHistory
	err := h.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "history entry", Name: fmt.Sprint(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("read history %d: %w", id, err)
	}
	return &row, nil
}

func (h *HistoryLog) filtered(ctx context.Context, f HistoryFilter) *gorm.DB {
	query := h.db.WithContext(ctx).Model(&models.SettingHistory{})
	if f.SettingType != "" {
		query = query.Where("setting_type = ?", f.SettingType)
	}
	if f.Module != "" {
		query = query.Where("module = ?", f.Module)
	}
	if f.Key != "" {
		query = query.Where("setting_key = ?", f.Key)
	}
	if f.UserID != nil {
		query = query.Where("changed_by = ?", *f.UserID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}
	if t, err := time.ParseInLocation(time.DateOnly, f.StartDate, time.Local); err == nil {
		query = query.Where("changed_at >= ?", t)
	}
	if t, err := time.ParseInLocation(time.DateOnly, f.EndDate, time.Local); err == nil {
		query = query.Where("changed_at < ?", t.AddDate(0, 0, 1))
	}
	return query
}

// List returns one page of history, newest first.
func (h *HistoryLog) List(ctx context.Context, f HistoryFilter) (*HistoryPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}

	var total int64
	if err := h.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}

	var items []models.SettingHistory
	offset := (f.Page - 1) * f.PageSize
	if err := h.filtered(ctx, f).Order("changed_at DESC, id DESC").Offset(offset).Limit(f.PageSize).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	return &HistoryPage{Total: total, Page: f.Page, PageSize: f.PageSize, Items: items}, nil
}

// ForKey returns the latest changes of one key. An empty module selects
// the system setting of that name.
func (h *HistoryLog) ForKey(ctx context.Context, key, module string, limit int) ([]models.SettingHistory, error) {
	if limit <= 0 {
		limit = KeyHistoryLimit
	}
	query := h.db.WithContext(ctx).Where("setting_key = ?", key)
	if module == "" {
		query = query.Where("setting_type = ?", models.SettingTypeSystem)
	} else {
		query = query.Where("setting_type = ? AND module = ?", models.SettingTypeModule, module)
	}

	var items []models.SettingHistory
	if err := query.Order("changed_at DESC, id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("history of %s: %w", key, err)
	}
	return items, nil
}

// Export returns every row matching f, oldest first.
func (h *HistoryLog) Export(ctx context.Context, f HistoryFilter) ([]models.SettingHistory, error) {
	var items []models.SettingHistory
	if err := h.filtered(ctx, f).Order("changed_at, id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("export history: %w", err)
	}
	return items, nil
}

// Count returns the number of rows matching f.
func (h *HistoryLog) Count(ctx context.Context, f HistoryFilter) (int64, error) {
	var total int64
	err := h.filtered(ctx, f).Count(&total).Error
	return total, err
}
