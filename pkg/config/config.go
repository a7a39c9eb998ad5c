// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, RPC, Store, Postgres, SQLite, Redis, Kafka, Ingestion,
// Insights, Jobs, etc.).
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

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	Store     StoreConfig     `yaml:"store"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Insights  InsightsConfig  `yaml:"insights"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. WriteTimeout defaults to zero
// because job status streams stay open; RequestTimeout bounds ordinary
// API calls instead.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RPCConfig holds the JSON-over-TCP RPC listener settings. A zero port
// disables the listener.
type RPCConfig struct {
	Port int    `yaml:"port"`
	Addr string `yaml:"addr"`
}

// StoreConfig selects the event store backend.
type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite or memory
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// SQLiteConfig holds the SQLite database location.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds Redis connection and caching parameters. Caching is
// skipped entirely when Enabled is false.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// KafkaConfig holds Kafka broker and topic settings. Job notifications are
// only published when Enabled is true.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IngestionJobs string `yaml:"ingestionJobs"`
}

// IngestionConfig controls file ingestion.
type IngestionConfig struct {
	UploadDir      string        `yaml:"uploadDir"`
	MaxUploadBytes int64         `yaml:"maxUploadBytes"`
	MaxLineBytes   int           `yaml:"maxLineBytes"`
	StrictEventIDs bool          `yaml:"strictEventIds"`
	StreamInterval time.Duration `yaml:"streamInterval"`
	// RateLimitPerMinute caps ingestion requests per client address. Zero
	// disables the limit.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
}

// InsightsConfig bounds the analytical queries.
type InsightsConfig struct {
	MaxTimelineDepth int `yaml:"maxTimelineDepth"`
}

// JobsConfig controls retention of finished ingestion jobs.
type JobsConfig struct {
	ReapSchedule string        `yaml:"reapSchedule"`
	Retention    time.Duration `yaml:"retention"`
}

// LoggingConfig controls structured logging level, output format, and an
// optional log file that receives a copy of every record.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.SQLite.Path == "" {
		return fmt.Errorf("sqlite store requires sqlite.path")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers")
	}
	if c.Insights.MaxTimelineDepth <= 0 {
		return fmt.Errorf("insights.maxTimelineDepth must be positive")
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     5 * time.Minute,
			WriteTimeout:    0,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Port: 7300,
			Addr: "localhost:7300",
		},
		Store: StoreConfig{
			Driver: "postgres",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "chronologicon",
			User:            "chronologicon",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		SQLite: SQLiteConfig{
			Path: "data/chronologicon.db",
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "chronologicon",
			Topics: KafkaTopics{
				IngestionJobs: "ingestion.jobs",
			},
		},
		Ingestion: IngestionConfig{
			UploadDir:          "uploads",
			MaxUploadBytes:     512 << 20,
			MaxLineBytes:       1 << 20,
			StreamInterval:     500 * time.Millisecond,
			RateLimitPerMinute: 60,
		},
		Insights: InsightsConfig{
			MaxTimelineDepth: 10000,
		},
		Jobs: JobsConfig{
			ReapSchedule: "@every 10m",
			Retention:    24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// envVar binds one environment variable, plus legacy aliases, to a field.
type envVar struct {
	keys  []string
	apply func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error { *dst(cfg) = v; return nil }
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(cfg) = d
		return nil
	}
}

// envVars lists every CHRONO_* override. The DB_* aliases are the names
// earlier deployments used for the PostgreSQL connection.
var envVars = []envVar{
	{[]string{"CHRONO_SERVER_PORT"}, integer(func(c *Config) *int { return &c.Server.Port })},
	{[]string{"CHRONO_RPC_PORT"}, integer(func(c *Config) *int { return &c.RPC.Port })},
	{[]string{"CHRONO_RPC_ADDR"}, str(func(c *Config) *string { return &c.RPC.Addr })},
	{[]string{"CHRONO_STORE_DRIVER"}, str(func(c *Config) *string { return &c.Store.Driver })},
	{[]string{"CHRONO_POSTGRES_HOST", "DB_HOST"}, str(func(c *Config) *string { return &c.Postgres.Host })},
	{[]string{"CHRONO_POSTGRES_PORT", "DB_PORT"}, integer(func(c *Config) *int { return &c.Postgres.Port })},
	{[]string{"CHRONO_POSTGRES_DATABASE", "DB_NAME"}, str(func(c *Config) *string { return &c.Postgres.Database })},
	{[]string{"CHRONO_POSTGRES_USER", "DB_USER"}, str(func(c *Config) *string { return &c.Postgres.User })},
	{[]string{"CHRONO_POSTGRES_PASSWORD", "DB_PASSWORD"}, str(func(c *Config) *string { return &c.Postgres.Password })},
	{[]string{"CHRONO_POSTGRES_SSLMODE"}, str(func(c *Config) *string { return &c.Postgres.SSLMode })},
	{[]string{"CHRONO_SQLITE_PATH"}, str(func(c *Config) *string { return &c.SQLite.Path })},
	{[]string{"CHRONO_REDIS_ENABLED"}, boolean(func(c *Config) *bool { return &c.Redis.Enabled })},
	{[]string{"CHRONO_REDIS_ADDR"}, str(func(c *Config) *string { return &c.Redis.Addr })},
	{[]string{"CHRONO_REDIS_PASSWORD"}, str(func(c *Config) *string { return &c.Redis.Password })},
	{[]string{"CHRONO_KAFKA_ENABLED"}, boolean(func(c *Config) *bool { return &c.Kafka.Enabled })},
	{[]string{"CHRONO_KAFKA_BROKERS"}, func(c *Config, v string) error {
		c.Kafka.Brokers = strings.Split(v, ",")
		return nil
	}},
	{[]string{"CHRONO_INGESTION_UPLOAD_DIR"}, str(func(c *Config) *string { return &c.Ingestion.UploadDir })},
	{[]string{"CHRONO_INGESTION_STRICT_EVENT_IDS"}, boolean(func(c *Config) *bool { return &c.Ingestion.StrictEventIDs })},
	{[]string{"CHRONO_INGESTION_RATE_LIMIT"}, integer(func(c *Config) *int { return &c.Ingestion.RateLimitPerMinute })},
	{[]string{"CHRONO_JOBS_RETENTION"}, duration(func(c *Config) *time.Duration { return &c.Jobs.Retention })},
	{[]string{"CHRONO_LOGGING_LEVEL"}, str(func(c *Config) *string { return &c.Logging.Level })},
	{[]string{"CHRONO_LOGGING_FORMAT"}, str(func(c *Config) *string { return &c.Logging.Format })},
	{[]string{"CHRONO_LOGGING_FILE"}, str(func(c *Config) *string { return &c.Logging.File })},
	{[]string{"CHRONO_METRICS_PORT"}, integer(func(c *Config) *int { return &c.Metrics.Port })},
}

// applyEnv overrides cfg from the environment. A malformed value is an
// error naming the variable, not a silent fallback to the file value.
func applyEnv(cfg *Config) error {
	var errs []error
	for _, ev := range envVars {
		for _, key := range ev.keys {
			v, ok := os.LookupEnv(key)
			if !ok || v == "" {
				continue
			}
			if err := ev.apply(cfg, v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
			}
			break
		}
	}
	return errors.Join(errs...)
}
