package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Slack     SlackConfig     `yaml:"slack"`
	Codewars  CodewarsConfig  `yaml:"codewars"`
	Stats     StatsConfig     `yaml:"stats"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	State     StateConfig     `yaml:"state"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// SlackConfig holds request verification and outbound webhook settings
type SlackConfig struct {
	SigningSecret  string        `yaml:"signing_secret"`
	WebhookURL     string        `yaml:"webhook_url"`
	Tolerance      time.Duration `yaml:"tolerance"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	EphemeralLimit int           `yaml:"ephemeral_limit"`
	PostStats      bool          `yaml:"post_stats"`
}

// CodewarsConfig holds Codewars API client settings
type CodewarsConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec"`
	Burst      int           `yaml:"burst"`
}

// StatsConfig holds report generation settings
type StatsConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// SchedulerConfig holds weekly digest settings
type SchedulerConfig struct {
	Timezone   string        `yaml:"timezone"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// Location resolves the configured timezone, falling back to time.Local
func (c *SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// State drivers
const (
	StateDriverFile     = "file"
	StateDriverMemory   = "memory"
	StateDriverPostgres = "postgres"
)

// StateConfig selects where the roster and schedule are persisted
type StateConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	User              string        `yaml:"user"`
	Password          string        `yaml:"password"`
	Database          string        `yaml:"database"`
	SSLMode           string        `yaml:"ssl_mode"`
	MaxConnections    int           `yaml:"max_connections"`
	MinConnections    int           `yaml:"min_connections"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `yaml:"max_conn_idle_time"`
	SnapshotRetention time.Duration `yaml:"snapshot_retention"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	Topic         string        `yaml:"topic"`
	ClientID      string        `yaml:"client_id"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// LoggingConfig controls log level and sinks
type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	File    string `yaml:"file"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	cfg := Config{Logging: LoggingConfig{Console: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 5 * 1024
	}

	// Slack defaults
	if c.Slack.Tolerance == 0 {
		c.Slack.Tolerance = 5 * time.Minute
	}
	if c.Slack.WebhookTimeout == 0 {
		c.Slack.WebhookTimeout = 10 * time.Second
	}
	if c.Slack.EphemeralLimit == 0 {
		c.Slack.EphemeralLimit = 3000
	}

	// Codewars defaults
	if c.Codewars.BaseURL == "" {
		c.Codewars.BaseURL = "https://www.codewars.com/api/v1/"
	}
	if c.Codewars.Timeout == 0 {
		c.Codewars.Timeout = 10 * time.Second
	}
	if c.Codewars.RatePerSec == 0 {
		c.Codewars.RatePerSec = 5
	}
	if c.Codewars.Burst == 0 {
		c.Codewars.Burst = 5
	}

	// Stats defaults
	if c.Stats.Concurrency == 0 {
		c.Stats.Concurrency = 4
	}
	if c.Stats.FetchTimeout == 0 {
		c.Stats.FetchTimeout = 15 * time.Second
	}

	// Scheduler defaults
	if c.Scheduler.RunTimeout == 0 {
		c.Scheduler.RunTimeout = 2 * time.Minute
	}

	// State defaults
	if c.State.Driver == "" {
		c.State.Driver = StateDriverFile
	}
	if c.State.Path == "" {
		c.State.Path = "data/state.yaml"
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 2
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 10 * time.Minute
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}
	if c.Postgres.SnapshotRetention == 0 {
		c.Postgres.SnapshotRetention = 365 * 24 * time.Hour
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "codewars-snapshots"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "codewars-bot"
	}
	if c.Kafka.WriteTimeout == 0 {
		c.Kafka.WriteTimeout = 10 * time.Second
	}
	if c.Kafka.RetryAttempts == 0 {
		c.Kafka.RetryAttempts = 3
	}
	if c.Kafka.RetryDelay == 0 {
		c.Kafka.RetryDelay = 1 * time.Second
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports configuration that would keep the bot from working
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Slack.SigningSecret) == "" {
		errs = append(errs, errors.New("slack.signing_secret is required"))
	}
	if strings.TrimSpace(c.Slack.WebhookURL) == "" {
		errs = append(errs, errors.New("slack.webhook_url is required"))
	}
	switch c.State.Driver {
	case StateDriverFile, StateDriverMemory:
	case StateDriverPostgres:
		if !c.Postgres.Enabled {
			errs = append(errs, errors.New("state.driver postgres needs postgres.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown state.driver %q", c.State.Driver))
	}
	if c.Stats.Concurrency < 1 {
		errs = append(errs, errors.New("stats.concurrency must be positive"))
	}
	if _, err := c.Scheduler.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Logging.Console = true
	cfg.applyDefaults()
	return cfg
}
