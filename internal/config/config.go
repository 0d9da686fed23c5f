package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	JWT         JWTConfig         `yaml:"jwt"`
	Log         LogConfig         `yaml:"log"`
	Cache       CacheConfig       `yaml:"cache"`
	Storage     StorageConfig     `yaml:"storage"`
	Mail        MailConfig        `yaml:"mail"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Backup      BackupConfig      `yaml:"backup"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// CacheConfig selects the backend of the process-wide settings cache.
type CacheConfig struct {
	Driver     string      `yaml:"driver"` // local, redis
	MaxBytes   int         `yaml:"max_bytes"`
	TTLSeconds int         `yaml:"ttl_seconds"` // 0 keeps entries until invalidated
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds where branding assets and backups are written.
type StorageConfig struct {
	Driver string      `yaml:"driver"` // local, minio
	Root   string      `yaml:"root"`
	Minio  MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	BasePath  string `yaml:"base_path"`
	UseTLS    bool   `yaml:"use_tls"`
}

// MailConfig is the boot-time mail transport. Saving the email settings
// category overrides it in-process.
type MailConfig struct {
	Mailer      string `yaml:"mailer"` // smtp, log
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Encryption  string `yaml:"encryption"` // tls, starttls, none
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
}

// PermissionsConfig maps a user role to the permissions it grants.
// The "*" permission grants everything.
type PermissionsConfig struct {
	Roles map[string][]string `yaml:"roles"`
}

type BackupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // cron spec, e.g. "0 3 * * *"
	Dir      string `yaml:"dir"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "erpsettings.db",
		},
		JWT: JWTConfig{
			Secret:     "erpsettings-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			Driver:   "local",
			MaxBytes: 16 * 1024 * 1024,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Storage: StorageConfig{
			Driver: "local",
			Root:   "public",
		},
		Mail: MailConfig{
			Mailer:      "log",
			Host:        "localhost",
			Port:        587,
			Encryption:  "starttls",
			FromAddress: "noreply@example.com",
			FromName:    "ERP",
		},
		Permissions: PermissionsConfig{
			Roles: map[string][]string{
				"admin":       {"*"},
				"manager":     {"settings.manage", "crm.settings", "hr.settings", "wms.settings"},
				"crm_manager": {"crm.settings"},
				"hr_manager":  {"hr.settings"},
				"wms_manager": {"wms.settings"},
				"user":        {},
			},
		},
		Backup: BackupConfig{
			Enabled:  false,
			Schedule: "0 3 * * *",
			Dir:      "backups",
		},
	}
}

// PermissionsFor returns the permissions granted to role.
func (c *Config) PermissionsFor(role string) []string {
	if c == nil || c.Permissions.Roles == nil {
		return nil
	}
	return c.Permissions.Roles[role]
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		c.Storage.Driver = driver
	}
	if root := os.Getenv("STORAGE_ROOT"); root != "" {
		c.Storage.Root = root
	}
	if host := os.Getenv("MAIL_HOST"); host != "" {
		c.Mail.Host = host
	}
	if port := os.Getenv("MAIL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Mail.Port = p
		}
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Cache.Driver = "redis"
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Cache.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Cache.Redis.DB = db
		}
	}

	c.Cache.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
