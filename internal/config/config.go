package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stampdesk/stampdesk/internal/ratelimit"
)

// EnvConfigPath names the environment variable that points at the config
// file.
const EnvConfigPath = "STAMPDESK_CONFIG"

// defaultConfigPath is used when neither a flag nor the environment
// provides a path.
const defaultConfigPath = "config.yaml"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the cross-process broadcast channel. An empty
// address disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// JWTConfig configures dashboard token signing.
type JWTConfig struct {
	Secret      string `yaml:"secret"`
	ExpiryHours int    `yaml:"expiry_hours"`
}

// Expiry returns the token lifetime.
func (c JWTConfig) Expiry() time.Duration {
	hours := c.ExpiryHours
	if hours <= 0 {
		hours = 72
	}
	return time.Duration(hours) * time.Hour
}

// LoggingConfig configures logrus output and rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ResilienceConfig configures the store executor and circuit breaker.
type ResilienceConfig struct {
	MaxRetries          int `yaml:"max_retries"`
	InitialDelayMS      int `yaml:"initial_delay_ms"`
	MaxDelayMS          int `yaml:"max_delay_ms"`
	PerCallTimeoutMS    int `yaml:"per_call_timeout_ms"`
	BreakerThreshold    int `yaml:"breaker_threshold"`
	BreakerCoolDownSecs int `yaml:"breaker_cool_down_seconds"`
}

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig                    `yaml:"server"`
	Database   DatabaseConfig                  `yaml:"database"`
	Redis      RedisConfig                     `yaml:"redis"`
	JWT        JWTConfig                       `yaml:"jwt"`
	Logging    LoggingConfig                   `yaml:"logging"`
	Resilience ResilienceConfig                `yaml:"resilience"`
	RateLimits map[string]ratelimit.PolicySpec `yaml:"rate_limits"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8318},
		Database: DatabaseConfig{DSN: "stampdesk.db"},
		JWT:      JWTConfig{ExpiryHours: 72},
		Logging:  LoggingConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
	}
}

// ResolveConfigPath picks the config path from an explicit value, the
// environment, or the default, in that order.
func ResolveConfigPath(explicit string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}
	if fromEnv := strings.TrimSpace(os.Getenv(EnvConfigPath)); fromEnv != "" {
		return fromEnv
	}
	return defaultConfigPath
}

// Load reads the YAML config at path over the defaults. A missing file is
// not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if os.IsNotExist(errRead) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return Config{}, fmt.Errorf("config: database.dsn is required")
	}
	return cfg, nil
}

// RateLimitPolicies merges the configured overrides over the default
// admission table.
func (c Config) RateLimitPolicies() map[string]ratelimit.Policy {
	policies := ratelimit.DefaultPolicies()
	for op, spec := range c.RateLimits {
		if spec.Valid() {
			policies[op] = spec.Policy()
		}
	}
	return policies
}
