package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Worker   WorkerConfig   `yaml:"worker"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Import   ImportConfig   `yaml:"import"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// RedisConfig holds the cache and queue connection
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SessionConfig controls how long imported datasets live
type SessionConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

// TTL returns the session lifetime.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// WorkerConfig holds background computation settings
type WorkerConfig struct {
	Count                   int     `yaml:"count"`
	RatePerSecond           float64 `yaml:"rate_per_second"`
	Burst                   int     `yaml:"burst"`
	MaxAttempts             int     `yaml:"max_attempts"`
	GraceSeconds            int     `yaml:"grace_seconds"`
	JobTimeoutSeconds       int     `yaml:"job_timeout_seconds"`
	BackoffBaseSeconds      int     `yaml:"backoff_base_seconds"`
	BackoffMaxSeconds       int     `yaml:"backoff_max_seconds"`
	ResultTTLSeconds        int     `yaml:"result_ttl_seconds"`
	FailureTTLSeconds       int     `yaml:"failure_ttl_seconds"`
	RecoveryIntervalSeconds int     `yaml:"recovery_interval_seconds"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// Grace is how long a finished job absorbs duplicate requests.
func (c WorkerConfig) Grace() time.Duration { return seconds(c.GraceSeconds) }

// JobTimeout bounds a single run.
func (c WorkerConfig) JobTimeout() time.Duration { return seconds(c.JobTimeoutSeconds) }

// BackoffBase is the first retry delay.
func (c WorkerConfig) BackoffBase() time.Duration { return seconds(c.BackoffBaseSeconds) }

// BackoffMax caps retry delays.
func (c WorkerConfig) BackoffMax() time.Duration { return seconds(c.BackoffMaxSeconds) }

// ResultTTL is how long a finished job record is kept.
func (c WorkerConfig) ResultTTL() time.Duration { return seconds(c.ResultTTLSeconds) }

// FailureTTL is how long a failed job record is kept.
func (c WorkerConfig) FailureTTL() time.Duration { return seconds(c.FailureTTLSeconds) }

// RecoveryInterval is how often due retries and stuck jobs are swept.
func (c WorkerConfig) RecoveryInterval() time.Duration { return seconds(c.RecoveryIntervalSeconds) }

// DatabaseConfig holds the optional failed-job audit database
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Enabled reports whether a DSN was configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// StorageConfig holds AWS settings for s3:// import sources
type StorageConfig struct {
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"`
}

// GetAWSProfile returns the AWS profile to use, with environment detection
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// ImportConfig holds spreadsheet download settings
type ImportConfig struct {
	HTTPRetries int `yaml:"http_retries"`
	MaxFileMB   int `yaml:"max_file_mb"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact defaults to true when unset.
func (c LoggingConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads configuration from a YAML file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Session.TTLSeconds == 0 {
		cfg.Session.TTLSeconds = 1800
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 2
	}
	if cfg.Worker.RatePerSecond == 0 {
		cfg.Worker.RatePerSecond = 5
	}
	if cfg.Worker.Burst == 0 {
		cfg.Worker.Burst = 2
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.GraceSeconds == 0 {
		cfg.Worker.GraceSeconds = 30
	}
	if cfg.Worker.JobTimeoutSeconds == 0 {
		cfg.Worker.JobTimeoutSeconds = 600
	}
	if cfg.Worker.BackoffBaseSeconds == 0 {
		cfg.Worker.BackoffBaseSeconds = 5
	}
	if cfg.Worker.BackoffMaxSeconds == 0 {
		cfg.Worker.BackoffMaxSeconds = 300
	}
	if cfg.Worker.ResultTTLSeconds == 0 {
		cfg.Worker.ResultTTLSeconds = 3600
	}
	if cfg.Worker.FailureTTLSeconds == 0 {
		cfg.Worker.FailureTTLSeconds = 86400
	}
	if cfg.Worker.RecoveryIntervalSeconds == 0 {
		cfg.Worker.RecoveryIntervalSeconds = 5
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Import.HTTPRetries == 0 {
		cfg.Import.HTTPRetries = 3
	}
	if cfg.Import.MaxFileMB == 0 {
		cfg.Import.MaxFileMB = 64
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if n, ok := envInt("SESSION_TTL_SECONDS"); ok {
		cfg.Session.TTLSeconds = n
	}
	if n, ok := envInt("WORKER_COUNT"); ok {
		cfg.Worker.Count = n
	}
	if n, ok := envInt("SERVER_PORT"); ok {
		cfg.Server.Port = n
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("AWS_PROFILE"); v != "" {
		cfg.Storage.AWSProfile = v
	}

	return cfg, nil
}

// envInt reads a positive integer variable. Malformed values are ignored.
func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
