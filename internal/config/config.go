// Package config provides configuration management for FleetSentry.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all FleetSentry configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Redis         RedisConfig         `yaml:"redis"`
	NATS          NATSConfig          `yaml:"nats"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Inspection    InspectionConfig    `yaml:"inspection"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	StreamInterval  time.Duration `yaml:"stream_interval"`
}

// RedisConfig holds Redis connection settings. Redis is optional: when
// disabled, the alert store and inspection rate bucket stay in-process.
type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	PoolSize    int    `yaml:"pool_size"`
	AlertStore  bool   `yaml:"alert_store"`
}

// NATSConfig holds the optional NATS telemetry source settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// PipelineConfig holds diagnosis pipeline settings.
type PipelineConfig struct {
	AlertThreshold float64 `yaml:"alert_threshold"`
}

// InspectionConfig holds WAF-lite request inspection settings.
type InspectionConfig struct {
	RateWindow  time.Duration `yaml:"rate_window"`
	RateMax     int           `yaml:"rate_max"`
	LogCapacity int           `yaml:"log_capacity"`
}

// ObservabilityConfig holds logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
	Environment    string  `yaml:"environment"`
	LogLevel       string  `yaml:"log_level"`
	LogFormat      string  `yaml:"log_format"` // json, console
	TracingEnabled bool    `yaml:"tracing_enabled"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	SamplingRate   float64 `yaml:"sampling_rate"`
	MetricsEnabled bool    `yaml:"metrics_enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// RedisPassword resolves the Redis password from the configured env var.
func (c *Config) RedisPassword() string {
	if c.Redis.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.Redis.PasswordEnv)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			StreamInterval:  3 * time.Second,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			PasswordEnv: "FLEETSENTRY_REDIS_PASSWORD",
			DB:          0,
			PoolSize:    10,
			AlertStore:  false,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "fleet.telemetry",
			Queue:   "fleetsentry",
		},
		Pipeline: PipelineConfig{
			AlertThreshold: 0.85,
		},
		Inspection: InspectionConfig{
			RateWindow:  30 * time.Second,
			RateMax:     20,
			LogCapacity: 200,
		},
		Observability: ObservabilityConfig{
			ServiceName:    "fleetsentry",
			ServiceVersion: "dev",
			Environment:    "development",
			LogLevel:       "info",
			LogFormat:      "json",
			TracingEnabled: false,
			OTLPEndpoint:   "localhost:4317",
			SamplingRate:   0.1,
			MetricsEnabled: true,
		},
	}
}
