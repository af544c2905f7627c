package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Store     StoreConfig     `mapstructure:"store"`
	Source    SourceConfig    `mapstructure:"source"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Tenants   []TenantConfig  `mapstructure:"tenants"`
	Retention RetentionConfig `mapstructure:"retention"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

// StoreConfig locates the SQLite job store.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// SourceConfig selects the tenant data source the backups read from.
type SourceConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ArtifactsConfig selects where sealed artifacts live. Exactly one backend is
// active at a time.
type ArtifactsConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   LocalConfig  `mapstructure:"local"`
	S3      S3Config     `mapstructure:"s3"`
	GDrive  GDriveConfig `mapstructure:"gdrive"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type GDriveConfig struct {
	CredentialsFile  string `mapstructure:"credentials_file"`
	ClientSecretFile string `mapstructure:"client_secret_file"`
	FolderID         string `mapstructure:"folder_id"`
	AuthAddr         string `mapstructure:"auth_addr"`
}

// TenantConfig declares a tenant with an optional backup schedule.
type TenantConfig struct {
	ID       string `mapstructure:"id"`
	Schedule string `mapstructure:"schedule"`
	Type     string `mapstructure:"type"`
	Enabled  bool   `mapstructure:"enabled"`
}

type RetentionConfig struct {
	Days     int    `mapstructure:"days"`
	Schedule string `mapstructure:"schedule"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("app.name", "tenantvault")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("store.path", "tenantvault.db")
	v.SetDefault("source.driver", "sqlite")
	v.SetDefault("artifacts.backend", "local")
	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.schedule", "0 3 * * *")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}

	switch c.Source.Driver {
	case "sqlite":
		if c.Source.DSN == "" {
			return fmt.Errorf("source.dsn is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("source.driver %q is not supported", c.Source.Driver)
	}

	switch c.Artifacts.Backend {
	case "local":
		if c.Artifacts.Local.Path == "" {
			return fmt.Errorf("artifacts.local.path is required")
		}
	case "s3":
		if c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required")
		}
		if c.Artifacts.S3.Region == "" {
			return fmt.Errorf("artifacts.s3.region is required")
		}
	case "gdrive":
		if c.Artifacts.GDrive.CredentialsFile == "" {
			return fmt.Errorf("artifacts.gdrive.credentials_file is required")
		}
		if c.Artifacts.GDrive.FolderID == "" {
			return fmt.Errorf("artifacts.gdrive.folder_id is required")
		}
	default:
		return fmt.Errorf("artifacts.backend %q is not supported", c.Artifacts.Backend)
	}

	for i, tenant := range c.Tenants {
		if tenant.ID == "" {
			return fmt.Errorf("tenants[%d]: id is required", i)
		}
		if tenant.Enabled && tenant.Schedule == "" {
			return fmt.Errorf("tenants[%d]: schedule is required when enabled", i)
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when enabled")
		}
	}

	return nil
}

// EnabledTenants returns the tenants with scheduled backups turned on.
func (c *Config) EnabledTenants() []TenantConfig {
	var enabled []TenantConfig
	for _, tenant := range c.Tenants {
		if tenant.Enabled {
			enabled = append(enabled, tenant)
		}
	}
	return enabled
}

// TenantIDs returns every configured tenant id, enabled or not. Retention
// covers all of them.
func (c *Config) TenantIDs() []string {
	ids := make([]string, 0, len(c.Tenants))
	for _, tenant := range c.Tenants {
		ids = append(ids, tenant.ID)
	}
	return ids
}
