package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServerAddress   = ":8090"
	defaultServerTimeout   = 30
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultRedisAddress    = "localhost:6379"

	defaultGenerationPollInterval = 5 * time.Second
	defaultGenerationBatchSize    = 5
	defaultGenerationMaxRetries   = 3
	defaultJobTimeout             = 300 * time.Second
	defaultRecentContentWindow    = 12 * time.Hour
	defaultMaxCostPerJob          = 0.50
	defaultStaleRunningAge        = 10 * time.Minute

	defaultDeliveryPollInterval = 5 * time.Second
	defaultDeliveryBatchSize    = 25
	defaultDeliveryMaxRetries   = 3
	defaultDeliveryTimeout      = 30 * time.Second
	defaultDeliveryRetention    = 7 * 24 * time.Hour

	defaultSchedulerReloadInterval = time.Minute
)

type Config struct {
	Debug      bool             `yaml:"debug"` // Controls log level and format
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Generation GenerationConfig `yaml:"generation"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"` // e.g., ":8090"
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GenerationConfig tunes the generation job worker.
type GenerationConfig struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	BatchSize           int           `yaml:"batch_size"`
	MaxRetries          int           `yaml:"max_retries"`
	JobTimeout          time.Duration `yaml:"job_timeout"`
	RecentContentWindow time.Duration `yaml:"recent_content_window"` // Skip window for non-forced enqueues
	MaxCostPerJob       float64       `yaml:"max_cost_per_job"`      // USD; 0 disables the guard
	StaleRunningAge     time.Duration `yaml:"stale_running_age"`     // Running jobs older than this are reset
}

// DeliveryConfig tunes the delivery worker.
type DeliveryConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	WebhookTimeout  time.Duration `yaml:"webhook_timeout"` // Per-request timeout for the api transport
	RetentionAge    time.Duration `yaml:"retention_age"`   // Terminal logs older than this are pruned
}

// SchedulerConfig tunes cron-driven template generation.
type SchedulerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
	Timezone       string        `yaml:"timezone"` // IANA name; empty means UTC
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 {
		return errors.New("database.port is required and must be positive")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Redis.Address == "" {
		return errors.New("redis.address is required")
	}
	if c.Generation.PollInterval <= 0 {
		return fmt.Errorf("generation.poll_interval must be positive, got %v", c.Generation.PollInterval)
	}
	if c.Generation.BatchSize <= 0 {
		return fmt.Errorf("generation.batch_size must be positive, got %d", c.Generation.BatchSize)
	}
	if c.Generation.MaxCostPerJob < 0 {
		return fmt.Errorf("generation.max_cost_per_job cannot be negative, got %v", c.Generation.MaxCostPerJob)
	}
	if c.Delivery.PollInterval <= 0 {
		return fmt.Errorf("delivery.poll_interval must be positive, got %v", c.Delivery.PollInterval)
	}
	if c.Delivery.BatchSize <= 0 {
		return fmt.Errorf("delivery.batch_size must be positive, got %d", c.Delivery.BatchSize)
	}
	if c.Scheduler.Enabled && c.Scheduler.ReloadInterval <= 0 {
		return fmt.Errorf("scheduler.reload_interval must be positive, got %v", c.Scheduler.ReloadInterval)
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultServerTimeout * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultServerTimeout * time.Second
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultDatabasePort
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Generation.PollInterval == 0 {
		cfg.Generation.PollInterval = defaultGenerationPollInterval
	}
	if cfg.Generation.BatchSize == 0 {
		cfg.Generation.BatchSize = defaultGenerationBatchSize
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = defaultGenerationMaxRetries
	}
	if cfg.Generation.JobTimeout == 0 {
		cfg.Generation.JobTimeout = defaultJobTimeout
	}
	if cfg.Generation.RecentContentWindow == 0 {
		cfg.Generation.RecentContentWindow = defaultRecentContentWindow
	}
	if cfg.Generation.MaxCostPerJob == 0 {
		cfg.Generation.MaxCostPerJob = defaultMaxCostPerJob
	}
	if cfg.Generation.StaleRunningAge == 0 {
		cfg.Generation.StaleRunningAge = defaultStaleRunningAge
	}
	if cfg.Delivery.PollInterval == 0 {
		cfg.Delivery.PollInterval = defaultDeliveryPollInterval
	}
	if cfg.Delivery.BatchSize == 0 {
		cfg.Delivery.BatchSize = defaultDeliveryBatchSize
	}
	if cfg.Delivery.MaxRetries == 0 {
		cfg.Delivery.MaxRetries = defaultDeliveryMaxRetries
	}
	if cfg.Delivery.DeliveryTimeout == 0 {
		cfg.Delivery.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.Delivery.WebhookTimeout == 0 {
		cfg.Delivery.WebhookTimeout = 10 * time.Second
	}
	if cfg.Delivery.RetentionAge == 0 {
		cfg.Delivery.RetentionAge = defaultDeliveryRetention
	}
	if cfg.Scheduler.ReloadInterval == 0 {
		cfg.Scheduler.ReloadInterval = defaultSchedulerReloadInterval
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = parseBool(v)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Set defaults
	setDefaults(&cfg)

	// Override with environment variables if present
	overrideWithEnvVars(&cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
