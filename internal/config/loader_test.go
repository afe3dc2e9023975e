package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  log_level: debug
  metrics_addr: ":9090"
azure:
  key: secret
  region: westeurope
  language: en-GB
  enable_miscue: true
postgres:
  dsn: postgres://localhost/englishnow
queue:
  retry_limit: 5
  retry_delay: 10s
  retry_backoff: true
  concurrency: 4
feedback:
  enabled: true
  api_key: sk-test
  model: gpt-4o-mini
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Azure.Language != "en-GB" {
		t.Errorf("Language = %q, want en-GB", cfg.Azure.Language)
	}
	if !cfg.Azure.EnableMiscue {
		t.Error("EnableMiscue not parsed")
	}
	if cfg.Queue.RetryLimit != 5 {
		t.Errorf("RetryLimit = %d, want 5", cfg.Queue.RetryLimit)
	}
	if cfg.Queue.RetryDelay.Std() != 10*time.Second {
		t.Errorf("RetryDelay = %v, want 10s", cfg.Queue.RetryDelay)
	}
	if !cfg.Feedback.Enabled {
		t.Error("Feedback.Enabled not parsed")
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
azure:
  key: secret
  region: westeurope
postgres:
  dsn: postgres://localhost/englishnow
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Azure.Language != "en-US" {
		t.Errorf("default Language = %q, want en-US", cfg.Azure.Language)
	}
	if cfg.Queue.Driver != QueuePostgres {
		t.Errorf("default Driver = %q, want postgres when a DSN is set", cfg.Queue.Driver)
	}
	if cfg.Queue.RetryLimit != 3 {
		t.Errorf("default RetryLimit = %d, want 3", cfg.Queue.RetryLimit)
	}
	if cfg.Queue.RetryDelay.Std() != 30*time.Second {
		t.Errorf("default RetryDelay = %v, want 30s", cfg.Queue.RetryDelay)
	}
	if cfg.Queue.Expire.Std() != 15*time.Minute {
		t.Errorf("default Expire = %v, want 15m", cfg.Queue.Expire)
	}
	if cfg.Queue.Concurrency != 2 {
		t.Errorf("default Concurrency = %d, want 2", cfg.Queue.Concurrency)
	}
	if cfg.Queue.AssessConcurrency != 4 {
		t.Errorf("default AssessConcurrency = %d, want 4", cfg.Queue.AssessConcurrency)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
azure:
  key: secret
  region: westeurope
  subscription: typo
postgres:
  dsn: postgres://localhost/englishnow
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing azure key",
			yaml: "azure:\n  region: westeurope\npostgres:\n  dsn: x\n",
			want: "azure.key is required",
		},
		{
			name: "missing region",
			yaml: "azure:\n  key: secret\npostgres:\n  dsn: x\n",
			want: "azure.region is required",
		},
		{
			name: "missing dsn",
			yaml: "azure:\n  key: secret\n  region: westeurope\n",
			want: "postgres.dsn is required",
		},
		{
			name: "bad log level",
			yaml: "server:\n  log_level: loud\nazure:\n  key: secret\n  region: westeurope\npostgres:\n  dsn: x\n",
			want: "server.log_level",
		},
		{
			name: "bad queue driver",
			yaml: "azure:\n  key: secret\n  region: westeurope\npostgres:\n  dsn: x\nqueue:\n  driver: redis\n",
			want: "queue.driver",
		},
		{
			name: "feedback without key",
			yaml: "azure:\n  key: secret\n  region: westeurope\npostgres:\n  dsn: x\nfeedback:\n  enabled: true\n  model: gpt-4o-mini\n",
			want: "feedback.api_key",
		},
		{
			name: "feedback without model",
			yaml: "azure:\n  key: secret\n  region: westeurope\npostgres:\n  dsn: x\nfeedback:\n  enabled: true\n  api_key: sk-test\n",
			want: "feedback.model",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
