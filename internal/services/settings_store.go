package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"github.com/huangang/erpsettings/internal/metrics"
	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/pkg/cache"
	"github.com/huangang/erpsettings/pkg/logger"
)

const (
	cacheSystemSettings = "system_settings"
	cacheGlobalSettings = "global_settings"
	cacheGenerationKey  = "settings:generation"
)

// Entry is a decoded system setting.
type Entry struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	IsPublic    bool   `json:"is_public"`
}

// Change describes one applied write, in stored (encoded) form.
type Change struct {
	SettingType string
	Module      string
	Key         string
	Type        string
	Old         *string
	New         string
}

// Changed reports whether the write altered the stored value.
func (c Change) Changed() bool {
	return c.Old == nil || *c.Old != c.New
}

type setOptions struct {
	typ         string
	category    string
	description string
	public      *bool
}

type SetOption func(*setOptions)

func WithType(typ string) SetOption {
	return func(o *setOptions) { o.typ = typ }
}

func WithCategory(category string) SetOption {
	return func(o *setOptions) { o.category = category }
}

func WithDescription(description string) SetOption {
	return func(o *setOptions) { o.description = description }
}

func WithPublic(public bool) SetOption {
	return func(o *setOptions) { o.public = &public }
}

// SettingStore persists system settings with a read-through snapshot cache.
//
// The cache holds the raw rows under a generation-tagged key. Invalidate
// deletes the current keys and bumps the generation, so a reader that
// loaded stale rows before the bump can only write to a key nobody reads.
type SettingStore struct {
	db    *gorm.DB
	cache cache.ICache
	ttl   time.Duration
}

func NewSettingStore(db *gorm.DB, c cache.ICache, ttl time.Duration) *SettingStore {
	return &SettingStore{db: db, cache: c, ttl: ttl}
}

// WithTx returns a store bound to tx. It reads the database directly and
// never touches the cache; the caller invalidates after commit.
func (s *SettingStore) WithTx(tx *gorm.DB) *SettingStore {
	return &SettingStore{db: tx}
}

func (s *SettingStore) generation(ctx context.Context) int64 {
	raw, err := s.cache.Get(ctx, cacheGenerationKey).Result()
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("[Settings] read cache generation")
		}
		return 0
	}
	gen, _ := strconv.ParseInt(raw, 10, 64)
	return gen
}

func cacheKey(gen int64, name string) string {
	return fmt.Sprintf("settings:%d:%s", gen, name)
}

func (s *SettingStore) loadRows(ctx context.Context, publicOnly bool) ([]models.SystemSetting, error) {
	var rows []models.SystemSetting
	q := s.db.WithContext(ctx).Order("setting_key")
	if publicOnly {
		q = q.Where("is_public = ?", true)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load system settings: %w", err)
	}
	// Row lookups binary-search the snapshot; database collations may order differently.
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func (s *SettingStore) cachedRows(ctx context.Context, name string, publicOnly bool) ([]models.SystemSetting, error) {
	if s.cache == nil {
		return s.loadRows(ctx, publicOnly)
	}

	key := cacheKey(s.generation(ctx), name)
	if data, err := s.cache.Get(ctx, key).Result(); err == nil {
		var rows []models.SystemSetting
		if err := sonic.UnmarshalString(data, &rows); err == nil {
			metrics.CacheHit()
			return rows, nil
		}
		logger.Warn().Str("key", key).Msg("[Settings] discarding undecodable cache entry")
	}

	metrics.CacheMiss()
	rows, err := s.loadRows(ctx, publicOnly)
	if err != nil {
		return nil, err
	}
	if data, err := sonic.MarshalString(rows); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl).Err(); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("[Settings] failed to cache snapshot")
		}
	}
	return rows, nil
}

// Invalidate drops both named caches. It is the only invalidation entry
// point and is called once per successful write, after commit.
func (s *SettingStore) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	gen := s.generation(ctx)
	if err := s.cache.Del(ctx, cacheKey(gen, cacheSystemSettings), cacheKey(gen, cacheGlobalSettings)).Err(); err != nil {
		logger.Warn().Err(err).Msg("[Settings] failed to delete cached snapshot")
	}
	if err := s.cache.Incr(ctx, cacheGenerationKey).Err(); err != nil {
		return fmt.Errorf("bump settings cache generation: %w", err)
	}
	return nil
}

func decodeRow(row models.SystemSetting) any {
	v, err := Decode(row.Value, row.Type)
	if err != nil {
		logger.Warn().Err(err).Str("key", row.Key).Msg("[Settings] stored value does not match its type")
		return row.Value
	}
	return v
}

func toEntry(row models.SystemSetting) Entry {
	return Entry{
		Key:         row.Key,
		Value:       decodeRow(row),
		Type:        NormalizeType(row.Type),
		Category:    row.Category,
		Description: row.Description,
		IsPublic:    row.IsPublic,
	}
}

// Get returns the decoded value of key.
func (s *SettingStore) Get(ctx context.Context, key string) (any, error) {
	row, err := s.Row(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeRow(*row), nil
}

// GetWithDefault returns def when key is absent or unreadable.
func (s *SettingStore) GetWithDefault(ctx context.Context, key string, def any) any {
	v, err := s.Get(ctx, key)
	if err != nil {
		return def
	}
	return v
}

// Row returns the stored row of key.
func (s *SettingStore) Row(ctx context.Context, key string) (*models.SystemSetting, error) {
	rows, err := s.cachedRows(ctx, cacheSystemSettings, false)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(rows), func(i int) bool { return rows[i].Key >= key })
	if i < len(rows) && rows[i].Key == key {
		row := rows[i]
		return &row, nil
	}
	return nil, &NotFoundError{Resource: "setting", Name: key}
}

// All returns every setting keyed by name.
func (s *SettingStore) All(ctx context.Context) (map[string]any, error) {
	rows, err := s.cachedRows(ctx, cacheSystemSettings, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		out[row.Key] = decodeRow(row)
	}
	return out, nil
}

// Entries returns every setting ordered by key.
func (s *SettingStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.cachedRows(ctx, cacheSystemSettings, false)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toEntry(row))
	}
	return out, nil
}

// GetByCategory returns the settings of one category ordered by key.
func (s *SettingStore) GetByCategory(ctx context.Context, category string) ([]Entry, error) {
	entries, err := s.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out, nil
}

// CategoryValues is GetByCategory as a key to value map.
func (s *SettingStore) CategoryValues(ctx context.Context, category string) (map[string]any, error) {
	entries, err := s.GetByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}

// Public returns the settings flagged is_public, served from global_settings.
func (s *SettingStore) Public(ctx context.Context) (map[string]any, error) {
	rows, err := s.cachedRows(ctx, cacheGlobalSettings, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(rows))
	for _, row := range rows {
		out[row.Key] = decodeRow(row)
	}
	return out, nil
}

// Set upserts key. See Upsert.
func (s *SettingStore) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	_, err := s.Upsert(ctx, key, value, opts...)
	return err
}

// Upsert writes key and reports the change. Type and category of an
// existing row are kept unless overridden; a new row's type is inferred
// from value when not given. On a store without a transaction the cache is
// invalidated before returning.
func (s *SettingStore) Upsert(ctx context.Context, key string, value any, opts ...SetOption) (Change, error) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	var row models.SystemSetting
	err := s.db.WithContext(ctx).Where("setting_key = ?", key).First(&row).Error
	exists := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Change{}, fmt.Errorf("read setting %s: %w", key, err)
	}

	typ := o.typ
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

	change := Change{SettingType: models.SettingTypeSystem, Key: key, Type: typ, New: encoded}

	if exists {
		old := row.Value
		change.Old = &old
		updates := map[string]interface{}{"value": encoded, "type": typ}
		if o.category != "" {
			updates["category"] = o.category
		}
		if o.description != "" {
			updates["description"] = o.description
		}
		if o.public != nil {
			updates["is_public"] = *o.public
		}
		if err := s.db.WithContext(ctx).Model(&row).Updates(updates).Error; err != nil {
			return Change{}, fmt.Errorf("update setting %s: %w", key, err)
		}
	} else {
		row = models.SystemSetting{
			Key:         key,
			Value:       encoded,
			Type:        typ,
			Category:    o.category,
			Description: o.description,
		}
		if row.Category == "" {
			row.Category = "general"
		}
		if o.public != nil {
			row.IsPublic = *o.public
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return Change{}, fmt.Errorf("create setting %s: %w", key, err)
		}
	}

	if s.cache != nil {
		if err := s.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("[Settings] cache invalidation failed")
		}
	}
	return change, nil
}

// Delete removes key.
func (s *SettingStore) Delete(ctx context.Context, key string) error {
	result := s.db.WithContext(ctx).Where("setting_key = ?", key).Delete(&models.SystemSetting{})
	if result.Error != nil {
		return fmt.Errorf("delete setting %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "setting", Name: key}
	}
	if s.cache != nil {
		if err := s.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("[Settings] cache invalidation failed")
		}
	}
	return nil
}
