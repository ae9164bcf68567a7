package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	LDAP     LDAPConfig     `yaml:"ldap"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
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

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// RedisConfig enables the durable timer queue. Without Redis the service
// falls back to in-process timers and relies on the sweeps for recovery.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig tunes the review queue state machine.
type QueueConfig struct {
	ClaimTimeout  time.Duration `yaml:"claim_timeout"`
	SLAWindow     time.Duration `yaml:"sla_window"`
	SweepLimit    int           `yaml:"sweep_limit"`
	SweepInterval string        `yaml:"sweep_interval"` // cron spec for the global sweep
}

// rawQueueConfig carries the durations as strings ("5m", "24h") because
// yaml.v3 has no native time.Duration support.
type rawQueueConfig struct {
	ClaimTimeout  string `yaml:"claim_timeout"`
	SLAWindow     string `yaml:"sla_window"`
	SweepLimit    int    `yaml:"sweep_limit"`
	SweepInterval string `yaml:"sweep_interval"`
}

func (q *QueueConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw rawQueueConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.ClaimTimeout != "" {
		d, err := time.ParseDuration(raw.ClaimTimeout)
		if err != nil {
			return fmt.Errorf("invalid queue.claim_timeout: %w", err)
		}
		q.ClaimTimeout = d
	}
	if raw.SLAWindow != "" {
		d, err := time.ParseDuration(raw.SLAWindow)
		if err != nil {
			return fmt.Errorf("invalid queue.sla_window: %w", err)
		}
		q.SLAWindow = d
	}
	q.SweepLimit = raw.SweepLimit
	q.SweepInterval = raw.SweepInterval
	return nil
}

func (q QueueConfig) MarshalYAML() (interface{}, error) {
	return rawQueueConfig{
		ClaimTimeout:  q.ClaimTimeout.String(),
		SLAWindow:     q.SLAWindow.String(),
		SweepLimit:    q.SweepLimit,
		SweepInterval: q.SweepInterval,
	}, nil
}

// StorageConfig locates the external audio object store.
type StorageConfig struct {
	BaseURL string `yaml:"base_url"`
}

// NotifyConfig configures the fire-and-forget new-work webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.applyQueueDefaults()
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
			DSN:    "lingopair.db",
		},
		JWT: JWTConfig{
			Secret:     "lingopair-secret-key-change-in-production",
			ExpireHour: 24,
		},
		LDAP: LDAPConfig{
			Enabled:    false,
			Port:       389,
			UserFilter: "(uid=%s)",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Queue: QueueConfig{
			ClaimTimeout:  5 * time.Minute,
			SLAWindow:     24 * time.Hour,
			SweepLimit:    25,
			SweepInterval: "@every 1m",
		},
		Storage: StorageConfig{
			BaseURL: "https://audio.lingopair.dev",
		},
	}
}

// applyQueueDefaults fills zero-valued queue tuning fields so a partial
// config file cannot disable the claim window or SLA entirely.
func (c *Config) applyQueueDefaults() {
	def := DefaultConfig().Queue
	if c.Queue.ClaimTimeout <= 0 {
		c.Queue.ClaimTimeout = def.ClaimTimeout
	}
	if c.Queue.SLAWindow <= 0 {
		c.Queue.SLAWindow = def.SLAWindow
	}
	if c.Queue.SweepLimit <= 0 {
		c.Queue.SweepLimit = def.SweepLimit
	}
	if c.Queue.SweepInterval == "" {
		c.Queue.SweepInterval = def.SweepInterval
	}
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
	if baseURL := os.Getenv("STORAGE_BASE_URL"); baseURL != "" {
		c.Storage.BaseURL = baseURL
	}
	if webhook := os.Getenv("NOTIFY_WEBHOOK_URL"); webhook != "" {
		c.Notify.WebhookURL = webhook
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
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
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	// Remaining is host:port
	c.Redis.Addr = url
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
