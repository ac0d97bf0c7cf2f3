package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the API server and worker.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":3333"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"0s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	DBPath       string        `envconfig:"DB_PATH" default:"api/db.json"`
	RateLimit    int           `envconfig:"RATE_LIMIT" default:"300"`
	SSEKeepAlive time.Duration `envconfig:"SSE_KEEPALIVE" default:"15s"`

	RedisAddr  string `envconfig:"REDIS_ADDR"`
	BackupDir  string `envconfig:"BACKUP_DIR" default:"api/backups"`
	BackupCron string `envconfig:"BACKUP_CRON" default:"0 3 * * *"`
	BackupKeep int    `envconfig:"BACKUP_KEEP" default:"7"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		return nil, errors.New("db path must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Storage backends selectable by clients.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// ClientConfig configures a store client such as gymctl. Values come from an
// optional YAML profile and are overridden by GYMFLOW_* environment variables.
type ClientConfig struct {
	APIBaseURL   string        `yaml:"api_base_url" envconfig:"API_BASE_URL"`
	Storage      string        `yaml:"storage" envconfig:"STORAGE"`
	StorageKey   string        `yaml:"storage_key" envconfig:"STORAGE_KEY"`
	StoragePath  string        `yaml:"storage_path" envconfig:"STORAGE_PATH"`
	RedisAddr    string        `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	PGDSN        string        `yaml:"pg_dsn" envconfig:"PG_DSN"`
	Revalidation string        `yaml:"revalidation" envconfig:"REVALIDATION"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" envconfig:"HTTP_TIMEOUT"`
	LogFormat    string        `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

const clientEnvPrefix = "GYMFLOW"

// LoadClientConfig reads the YAML profile at path, when given, then applies
// environment overrides and defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("app: read client profile: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("app: parse client profile: %w", err)
		}
	}
	if err := envconfig.Process(clientEnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("app: client env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ClientConfig) applyDefaults() {
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	c.Revalidation = strings.ToLower(strings.TrimSpace(c.Revalidation))
	if c.Storage == "" {
		c.Storage = StorageFile
	}
	if c.StorageKey == "" {
		c.StorageKey = "gf_users"
	}
	if c.StoragePath == "" {
		c.StoragePath = ".gymflow"
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "127.0.0.1:6379"
	}
	if c.Revalidation == "" {
		c.Revalidation = "push"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
}

// Validate checks enumerated settings.
func (c *ClientConfig) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageFile, StorageRedis, StorageSQLite:
	case StoragePostgres:
		if c.PGDSN == "" && c.APIBaseURL == "" {
			return errors.New("app: postgres storage requires GYMFLOW_PG_DSN")
		}
	default:
		return fmt.Errorf("app: unknown storage %q", c.Storage)
	}
	switch c.Revalidation {
	case "push", "poll", "none":
	default:
		return fmt.Errorf("app: unknown revalidation strategy %q", c.Revalidation)
	}
	return nil
}

// Remote reports whether the client talks to the REST service.
func (c *ClientConfig) Remote() bool {
	return c != nil && c.APIBaseURL != ""
}
