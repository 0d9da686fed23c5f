package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/huangang/erpsettings/internal/config"
	"github.com/huangang/erpsettings/internal/models"
	"github.com/huangang/erpsettings/internal/services"
	"github.com/huangang/erpsettings/pkg/cache"
	"github.com/huangang/erpsettings/pkg/logger"
	"github.com/huangang/erpsettings/pkg/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "settingsctl",
	Short: "settingsctl exports, imports and backs up ERP settings",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "write every setting to a JSON document",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := open()
		if err != nil {
			return err
		}
		doc, err := env.settings.Export(cmd.Context(), services.SystemActor())
		if err != nil {
			return err
		}
		body, err := sonic.ConfigStd.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("output")
		if out == "" || out == "-" {
			_, err = cmd.OutOrStdout().Write(append(body, '\n'))
			return err
		}
		if err := os.WriteFile(out, body, 0o644); err != nil {
			return err
		}
		cmd.Printf("exported %d system and %d module settings to %s\n", len(doc.SystemSettings), countModuleSettings(doc), out)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "apply a JSON document produced by export",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, _ := cmd.Flags().GetString("file")
		if in == "" {
			return fmt.Errorf("--file is required")
		}
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		env, err := open()
		if err != nil {
			return err
		}
		result, err := env.settings.Import(cmd.Context(), services.SystemActor(), data)
		if err != nil {
			return err
		}
		cmd.Printf("imported %d system and %d module settings\n", result.SystemSettings, result.ModuleSettings)
		for _, w := range result.Warnings {
			cmd.Printf("warning: %s\n", w)
		}
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "write one backup to the configured storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := open()
		if err != nil {
			return err
		}
		path, err := env.backups.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Printf("backup written to %s\n", path)
		return nil
	},
}

func countModuleSettings(doc *services.SettingsExport) int {
	n := 0
	for _, m := range doc.ModuleSettings {
		n += len(m)
	}
	return n
}

type cliEnv struct {
	settings *services.SettingsService
	backups  *services.BackupService
}

func open() (*cliEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)

	db, err := models.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := models.Seed(db); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	services.InitSystemLogger(db)

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	mailBase := services.MailSettingsFromConfig(cfg.Mail)
	settings := services.NewSettingsService(services.SettingsDeps{
		DB:       db,
		Store:    services.NewSettingStore(db, cache.New(cfg.Cache), time.Duration(cfg.Cache.TTLSeconds)*time.Second),
		MailBase: mailBase,
		Branding: services.NewBrandingAssets(store),
		Styles:   services.NewThemeCompiler(store),
	})
	return &cliEnv{
		settings: settings,
		backups:  services.NewBackupService(settings, store, cfg.Backup),
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	exportCmd.Flags().StringP("output", "o", "", "output file, stdout when empty")
	importCmd.Flags().StringP("file", "f", "", "document to import")
	rootCmd.AddCommand(exportCmd, importCmd, backupCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
