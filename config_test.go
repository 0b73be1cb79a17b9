package treebeard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{APIKey: "k", ProjectName: "p"}
	cfg.applyDefaults()

	if cfg.Endpoint != DefaultEndpoint {
		t.Errorf("endpoint default = %q", cfg.Endpoint)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("batch size default = %d", cfg.BatchSize)
	}
	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("flush interval default = %v", cfg.FlushInterval)
	}
	if cfg.RetryMax != 3 || cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("retry defaults = %d/%v", cfg.RetryMax, cfg.RetryBaseDelay)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("defaulted config failed validation: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantKey string
	}{
		{"missing api key", Config{ProjectName: "p", Endpoint: "https://x"}, "APIKey"},
		{"missing project", Config{APIKey: "k", Endpoint: "https://x"}, "ProjectName"},
		{"bad scheme", Config{APIKey: "k", ProjectName: "p", Endpoint: "ftp://x"}, "Endpoint"},
		{"negative batch", Config{APIKey: "k", ProjectName: "p", Endpoint: "https://x", BatchSize: -1}, "BatchSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Key != tt.wantKey {
				t.Errorf("error key = %q, want %q", cfgErr.Key, tt.wantKey)
			}
		})
	}
}

func TestLivetailEndpointNeedsNoAPIKey(t *testing.T) {
	cfg := Config{ProjectName: "p", Endpoint: "ws://localhost:9000/livetail"}
	if err := cfg.validate(); err != nil {
		t.Errorf("live-tail config rejected: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TREEBEARD_API_KEY", "env-key")
	t.Setenv("TREEBEARD_PROJECT_NAME", "env-project")
	t.Setenv("TREEBEARD_BATCH_SIZE", "25")
	t.Setenv("TREEBEARD_FLUSH_INTERVAL", "750ms")
	t.Setenv("TREEBEARD_CAPTURE_STDLOG", "true")
	t.Setenv("GIT_SHA", "abc1234")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv returned error: %v", err)
	}
	if cfg.APIKey != "env-key" || cfg.ProjectName != "env-project" {
		t.Errorf("credentials not read from env: %+v", cfg)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("batch size = %d, want 25", cfg.BatchSize)
	}
	if cfg.FlushInterval != 750*time.Millisecond {
		t.Errorf("flush interval = %v", cfg.FlushInterval)
	}
	if !cfg.CaptureStdLog {
		t.Error("capture_stdlog not read from env")
	}
	if cfg.CommitSHA != "abc1234" {
		t.Errorf("commit sha fallback = %q", cfg.CommitSHA)
	}
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"TREEBEARD_BATCH_SIZE", "twenty"},
		{"TREEBEARD_RETRY_MAX", "3.5"},
		{"TREEBEARD_FLUSH_INTERVAL", "soon"},
		{"TREEBEARD_CAPTURE_STDLOG", "yep"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError for %s=%s, got %v", tt.key, tt.value, err)
			}
			if cfgErr.Key != tt.key {
				t.Errorf("error key = %q, want %q", cfgErr.Key, tt.key)
			}
		})
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treebeard.toml")
	content := `
api_key = "file-key"
project_name = "file-project"
batch_size = 50
flush_interval = "3s"
capture_panics = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile returned error: %v", err)
	}
	if cfg.APIKey != "file-key" || cfg.BatchSize != 50 {
		t.Errorf("file values not read: %+v", cfg)
	}
	if cfg.FlushInterval != 3*time.Second {
		t.Errorf("flush interval = %v", cfg.FlushInterval)
	}
	if !cfg.CapturePanics {
		t.Error("capture_panics not read")
	}
}

func TestFromFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "treebeard.toml")
	if err := os.WriteFile(path, []byte(`flush_interval = "soon"`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := FromFile(path)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Key != "flush_interval" {
		t.Errorf("error key = %q", cfgErr.Key)
	}
}
