package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pulsehub/internal/logger"
)

// Config represents the application configuration
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Auth       AuthConfig       `yaml:"auth"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    logger.Config    `yaml:"logging"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Sources    []SourceConfig   `yaml:"sources"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// PostgresConfig represents the optional Postgres history store
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	MaxOpen int    `yaml:"max_open"`
	MaxIdle int    `yaml:"max_idle"`
}

// AuthConfig represents bearer-token settings for RBAC module claims
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// MonitoringConfig represents Prometheus exposure settings
type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	PrometheusPath    string `yaml:"prometheus_path"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// RateLimitConfig represents rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second"`
	Burst             int  `yaml:"burst"`
}

// PipelineConfig represents aggregation pipeline tuning
type PipelineConfig struct {
	UpdateInterval           time.Duration        `yaml:"update_interval"`
	BufferSizePerSource      int                  `yaml:"buffer_size_per_source"`
	RetentionPeriod          time.Duration        `yaml:"retention_period"`
	MinConfidenceFloor       float64              `yaml:"min_confidence_floor"`
	MinHealthySourceFraction float64              `yaml:"min_healthy_source_fraction"`
	AlertResolveCycles       int                  `yaml:"alert_resolve_cycles"`
	MinSamples               int                  `yaml:"min_samples"`
	AnomalyWindow            int                  `yaml:"anomaly_window"`
	AnomalyThreshold         float64              `yaml:"anomaly_threshold"`
	ShutdownTimeout          time.Duration        `yaml:"shutdown_timeout"`
	ModelRefreshSchedule     string               `yaml:"model_refresh_schedule"`
	RetentionSweepSchedule   string               `yaml:"retention_sweep_schedule"`
	Thresholds               map[string]Threshold `yaml:"thresholds"`
}

// Threshold represents the warning/critical bounds for one metric
type Threshold struct {
	Warning  float64 `yaml:"warning"`
	Critical float64 `yaml:"critical"`
}

// SourceConfig represents one configured source connector
type SourceConfig struct {
	Name             string        `yaml:"name"`
	Type             string        `yaml:"type"` // http, redis, kafka, sim
	Category         string        `yaml:"category"`
	Modules          []string      `yaml:"modules"`
	Endpoint         string        `yaml:"endpoint"`
	Brokers          []string      `yaml:"brokers"`
	Topic            string        `yaml:"topic"`
	Keys             []string      `yaml:"keys"`
	Metrics          []string      `yaml:"metrics"`
	Seed             int64         `yaml:"seed"`
	FailureThreshold int           `yaml:"failure_threshold"`
	PullTimeout      time.Duration `yaml:"pull_timeout"`
}

// Load loads configuration from a YAML file, expanding ${ENV} references
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns a configuration with sane defaults applied
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "pulsehub",
			Version: "dev",
			Env:     "development",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Monitoring: MonitoringConfig{
			PrometheusEnabled: true,
			PrometheusPath:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: logger.DefaultConfig,
		Pipeline: PipelineConfig{
			UpdateInterval:           5 * time.Second,
			BufferSizePerSource:      2000,
			RetentionPeriod:          time.Hour,
			MinConfidenceFloor:       40,
			MinHealthySourceFraction: 0.5,
			AlertResolveCycles:       3,
			MinSamples:               10,
			AnomalyWindow:            20,
			AnomalyThreshold:         2.5,
			ShutdownTimeout:          10 * time.Second,
			ModelRefreshSchedule:     "@every 5m",
			RetentionSweepSchedule:   "@every 10m",
		},
	}
}
