package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	JWTSecret      string        `yaml:"jwt_secret"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	StoreTimeout   time.Duration `yaml:"store_timeout"` // Per-write bound inside a tick
	SampleSource   string        `yaml:"sample_source"` // "synthetic" or "host"

	EventStore  string      `yaml:"event_store"` // "sqlite" or "redis"
	EventDBPath string      `yaml:"event_db_path"`
	Redis       RedisConfig `yaml:"redis"`

	StatsDriver string `yaml:"stats_driver"` // "sqlite" or "mysql"
	StatsDSN    string `yaml:"stats_dsn"`

	Kafka KafkaConfig `yaml:"kafka"`
}

// RedisConfig configures the redis event store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// KafkaConfig configures the optional kafka sink. The sink is disabled
// when no brokers are given. A sink that falls behind (broker down or slow)
// is dropped from the hub and does not reconnect until the process restarts.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether live events should be forwarded to kafka.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// Load loads configuration from an optional YAML file and environment
// variables, in that order, on top of the defaults.
func Load() (*Config, error) {
	cfg := defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = cfg.SampleInterval / 2
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid port %d", c.ServerPort)
	}
	if c.SampleInterval < time.Second {
		return fmt.Errorf("sample interval must be at least 1s, got %s", c.SampleInterval)
	}
	if c.StoreTimeout <= 0 || 2*c.StoreTimeout > c.SampleInterval {
		return fmt.Errorf("store timeout %s must be at most half the sample interval %s", c.StoreTimeout, c.SampleInterval)
	}
	switch c.SampleSource {
	case "synthetic", "host":
	default:
		return fmt.Errorf("unknown sample source %q", c.SampleSource)
	}
	switch c.EventStore {
	case "sqlite":
		if c.EventDBPath == "" {
			return fmt.Errorf("EVENT_DB_PATH is required for the sqlite event store")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis event store")
		}
	default:
		return fmt.Errorf("unknown event store %q", c.EventStore)
	}
	switch c.StatsDriver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unknown stats driver %q", c.StatsDriver)
	}
	if c.StatsDSN == "" {
		return fmt.Errorf("STATS_DSN is required")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		ServerPort:     4000,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		LogLevel:       "info",
		SampleInterval: 5 * time.Second,
		SampleSource:   "synthetic",
		EventStore:     "sqlite",
		EventDBPath:    "./events.db",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "monitor:",
		},
		StatsDriver: "sqlite",
		StatsDSN:    "./stats.db",
		Kafka: KafkaConfig{
			Topic: "telemetry-events",
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.ServerPort, err = getEnvInt("PORT", cfg.ServerPort); err != nil {
		return err
	}
	if cfg.SampleInterval, err = getEnvDuration("SAMPLE_INTERVAL", cfg.SampleInterval); err != nil {
		return err
	}
	if cfg.StoreTimeout, err = getEnvDuration("STORE_TIMEOUT", cfg.StoreTimeout); err != nil {
		return err
	}
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", cfg.Redis.DB); err != nil {
		return err
	}

	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.SampleSource = getEnv("SAMPLE_SOURCE", cfg.SampleSource)
	cfg.EventStore = getEnv("EVENT_STORE", cfg.EventStore)
	cfg.EventDBPath = getEnv("EVENT_DB_PATH", cfg.EventDBPath)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.KeyPrefix = getEnv("REDIS_KEY_PREFIX", cfg.Redis.KeyPrefix)
	cfg.StatsDriver = getEnv("STATS_DRIVER", cfg.StatsDriver)
	cfg.StatsDSN = getEnv("STATS_DSN", cfg.StatsDSN)
	cfg.Kafka.Brokers = getEnvList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	return nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
