package services

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robfig/cron/v3"

	"github.com/huangang/erpsettings/internal/config"
	"github.com/huangang/erpsettings/pkg/logger"
	"github.com/huangang/erpsettings/pkg/storage"
)

// BackupService periodically writes the settings export document to the
// asset store.
type BackupService struct {
	settings      *SettingsService
	store         storage.Store
	cfg           config.BackupConfig
	cronScheduler *cron.Cron
	entryID       cron.EntryID
}

func NewBackupService(settings *SettingsService, store storage.Store, cfg config.BackupConfig) *BackupService {
	if cfg.Dir == "" {
		cfg.Dir = "backups"
	}
	return &BackupService{settings: settings, store: store, cfg: cfg}
}

// StartScheduler registers the backup job. It does nothing when backups
// are disabled.
func (s *BackupService) StartScheduler() error {
	if !s.cfg.Enabled {
		logger.Info().Msg("[Backup] scheduled backups disabled")
		return nil
	}
	s.cronScheduler = cron.New()
	entryID, err := s.cronScheduler.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Error().Err(err).Msg("[Backup] scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.cfg.Schedule, err)
	}
	s.entryID = entryID
	s.cronScheduler.Start()
	logger.Info().Str("cron", s.cfg.Schedule).Str("dir", s.cfg.Dir).Msg("[Backup] scheduler started")
	return nil
}

func (s *BackupService) StopScheduler() {
	if s.cronScheduler != nil {
		<-s.cronScheduler.Stop().Done()
	}
}

// RunOnce writes one snapshot and returns its path.
func (s *BackupService) RunOnce(ctx context.Context) (string, error) {
	doc, err := s.settings.snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode backup: %w", err)
	}

	name := path.Join(s.cfg.Dir, "settings-"+doc.ExportedAt.Format("20060102-150405")+".json")
	if err := s.store.Put(ctx, name, data, "application/json"); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	logger.Info().Str("path", name).Int("bytes", len(data)).Msg("[Backup] settings snapshot written")
	return name, nil
}

// List returns the stored backup paths.
func (s *BackupService) List(ctx context.Context) ([]string, error) {
	return s.store.List(ctx, s.cfg.Dir)
}

// NextRun reports when the scheduled backup fires next.
func (s *BackupService) NextRun() time.Time {
	if s.cronScheduler == nil {
		return time.Time{}
	}
	return s.cronScheduler.Entry(s.entryID).Next
}
