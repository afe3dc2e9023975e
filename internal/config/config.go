// Package config provides the configuration schema and loader for the
// pronunciation assessment service.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML strings like "30s"
// or "15m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity for the service.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// QueueDriver selects the job queue backing store.
type QueueDriver string

const (
	// QueueInmem keeps jobs in process memory. Jobs do not survive a
	// restart; suitable for single-instance and development setups.
	QueueInmem QueueDriver = "inmem"

	// QueuePostgres stores jobs in the PostgreSQL database itself, so a job
	// survives restarts and multiple instances can share the work.
	QueuePostgres QueueDriver = "postgres"
)

// IsValid reports whether d is a recognised queue driver.
func (d QueueDriver) IsValid() bool {
	return d == QueueInmem || d == QueuePostgres
}

// Config is the root configuration structure for the service.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Azure    AzureConfig    `yaml:"azure"`
	Postgres PostgresConfig `yaml:"postgres"`
	Queue    QueueConfig    `yaml:"queue"`
	Feedback FeedbackConfig `yaml:"feedback"`
}

// ServerConfig holds logging and metrics settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// AzureConfig holds speech service credentials and recognition settings.
type AzureConfig struct {
	// Key is the Azure Speech subscription key.
	Key string `yaml:"key"`

	// Region is the Azure Speech region (e.g., "westeurope").
	Region string `yaml:"region"`

	// Language is the recognition language. Default: "en-US".
	Language string `yaml:"language"`

	// EnableMiscue lets the service flag omitted and inserted words itself.
	EnableMiscue bool `yaml:"enable_miscue"`
}

// PostgresConfig holds database settings.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string. Required; sessions and
	// attempts always live in the database.
	DSN string `yaml:"dsn"`
}

// QueueConfig holds job queue and worker settings.
type QueueConfig struct {
	// Driver selects the queue backing store. Default: postgres when a DSN
	// is configured, inmem otherwise.
	Driver QueueDriver `yaml:"driver"`

	// RetryLimit is how many times a failed job is retried. Default: 3.
	RetryLimit int `yaml:"retry_limit"`

	// RetryDelay is the base delay before a retry. Default: 30s.
	RetryDelay Duration `yaml:"retry_delay"`

	// RetryBackoff enables exponential growth of the retry delay.
	RetryBackoff bool `yaml:"retry_backoff"`

	// Expire is how long a job may stay active before it is considered
	// stuck and handed back to the queue. Default: 15m.
	Expire Duration `yaml:"expire"`

	// Concurrency is the number of session jobs processed in parallel per
	// instance. Default: 2.
	Concurrency int `yaml:"concurrency"`

	// PollInterval is how often idle workers look for new jobs.
	// Default: 2s.
	PollInterval Duration `yaml:"poll_interval"`

	// AssessConcurrency bounds parallel provider calls within one session
	// job. Default: 4.
	AssessConcurrency int `yaml:"assess_concurrency"`
}

// FeedbackConfig holds settings for qualitative feedback generation.
type FeedbackConfig struct {
	// Enabled turns feedback generation on. When false no feedback jobs are
	// processed and sessions stay at feedback status "pending".
	Enabled bool `yaml:"enabled"`

	// APIKey is the OpenAI API key. Required when Enabled.
	APIKey string `yaml:"api_key"`

	// Model is the chat model used for feedback (e.g., "gpt-4o-mini").
	// Required when Enabled.
	Model string `yaml:"model"`

	// BaseURL overrides the default OpenAI API base URL.
	BaseURL string `yaml:"base_url"`
}
