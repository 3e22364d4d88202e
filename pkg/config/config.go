// Package config holds the runtime configuration: where sessions are
// stored, how many workers pump messages, and where observability is
// exposed. The assistant definition itself lives in its own file, see
// pkg/assistant.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "24h" or "10m".
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Session store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the runtime configuration.
type Config struct {
	// AssistantPath points to the assistant definition YAML.
	AssistantPath string `yaml:"assistant_path"`

	// Store selects session persistence.
	Store StoreConfig `yaml:"store"`

	// Runtime tunes the turn loop.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Observability exposes health and metrics.
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`

	Redis RedisConfig `yaml:"redis"`

	// SessionTTL expires idle sessions (0 = never).
	SessionTTL Duration `yaml:"session_ttl"`
	// JanitorSchedule is a cron expression for the idle-session sweep.
	JanitorSchedule string `yaml:"janitor_schedule"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	PoolSize int    `yaml:"pool_size"`
}

// RuntimeConfig tunes message processing.
type RuntimeConfig struct {
	Workers        int `yaml:"workers"`
	MaxPredictions int `yaml:"max_predictions"`
	// LLMRateLimit caps backend calls per second; 0 disables the cap.
	LLMRateLimit float64 `yaml:"llm_rate_limit"`
	LLMBurst     int     `yaml:"llm_burst"`
}

// ObservabilityConfig exposes health and metrics endpoints.
type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.Store.Redis.Password == "" {
		c.Store.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "tomo:session:"
	}
	if c.Store.JanitorSchedule == "" {
		c.Store.JanitorSchedule = "@every 10m"
	}
	if c.Runtime.Workers == 0 {
		c.Runtime.Workers = 4
	}
	if c.Runtime.MaxPredictions == 0 {
		c.Runtime.MaxPredictions = 100
	}
	if c.Runtime.LLMBurst == 0 {
		c.Runtime.LLMBurst = 1
	}
	if c.Observability.Port == 0 {
		c.Observability.Port = 9090
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store backend is redis but no address is configured")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Runtime.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.Runtime.MaxPredictions < 1 {
		return fmt.Errorf("max_predictions must be at least 1")
	}
	return nil
}
