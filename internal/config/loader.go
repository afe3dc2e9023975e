package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Azure.Language == "" {
		cfg.Azure.Language = "en-US"
	}
	if cfg.Queue.Driver == "" {
		if cfg.Postgres.DSN != "" {
			cfg.Queue.Driver = QueuePostgres
		} else {
			cfg.Queue.Driver = QueueInmem
		}
	}
	if cfg.Queue.RetryLimit == 0 {
		cfg.Queue.RetryLimit = 3
	}
	if cfg.Queue.RetryDelay == 0 {
		cfg.Queue.RetryDelay = Duration(30 * time.Second)
	}
	if cfg.Queue.Expire == 0 {
		cfg.Queue.Expire = Duration(15 * time.Minute)
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 2
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Queue.AssessConcurrency == 0 {
		cfg.Queue.AssessConcurrency = 4
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Azure.Key == "" {
		errs = append(errs, errors.New("azure.key is required"))
	}
	if cfg.Azure.Region == "" {
		errs = append(errs, errors.New("azure.region is required"))
	}

	if cfg.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}

	if !cfg.Queue.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("queue.driver %q is invalid; valid values: inmem, postgres", cfg.Queue.Driver))
	}
	if cfg.Queue.RetryLimit < 0 {
		errs = append(errs, fmt.Errorf("queue.retry_limit %d must not be negative", cfg.Queue.RetryLimit))
	}
	if cfg.Queue.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("queue.concurrency %d must be at least 1", cfg.Queue.Concurrency))
	}
	if cfg.Queue.AssessConcurrency < 1 {
		errs = append(errs, fmt.Errorf("queue.assess_concurrency %d must be at least 1", cfg.Queue.AssessConcurrency))
	}

	if cfg.Feedback.Enabled {
		if cfg.Feedback.APIKey == "" {
			errs = append(errs, errors.New("feedback.enabled is set but feedback.api_key is empty"))
		}
		if cfg.Feedback.Model == "" {
			errs = append(errs, errors.New("feedback.enabled is set but feedback.model is empty"))
		}
	}

	if cfg.Queue.Driver == QueueInmem {
		slog.Warn("queue.driver is inmem; queued jobs will not survive a restart")
	}

	return errors.Join(errs...)
}
