package treebeard

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultEndpoint is the hosted ingestion API.
const DefaultEndpoint = "https://api.treebeardhq.com/logs/batch"

// Config is the immutable engine configuration. It is validated once by
// Init; the zero value plus APIKey and ProjectName is a working setup.
type Config struct {
	// APIKey authenticates against the ingestion endpoint.
	APIKey string

	// ProjectName scopes telemetry within the account.
	ProjectName string

	// Endpoint selects the delivery backend by URL scheme: http(s) for the
	// batch API, nats for a co-located collector, cloudwatch for AWS
	// CloudWatch Logs, ws(s) for the live-tail dev viewer.
	Endpoint string

	// BatchSize is the buffered-entry count that triggers an immediate
	// flush and the maximum number of log entries per request.
	BatchSize int

	// FlushInterval is the periodic flush cadence.
	FlushInterval time.Duration

	// CaptureStdLog redirects the standard library logger into the engine
	// for the lifetime of the instance.
	CaptureStdLog bool

	// CapturePanics makes the bundled middleware and RunAsync record
	// recovered panics before re-raising or reporting them.
	CapturePanics bool

	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration

	// RetryMax and RetryBaseDelay shape the bounded delivery retry policy:
	// RetryMax attempts with capped exponential backoff starting at
	// RetryBaseDelay.
	RetryMax       int
	RetryBaseDelay time.Duration

	// ShutdownTimeout bounds the final flush during Shutdown.
	ShutdownTimeout time.Duration

	// CommitSHA identifies the running build in trace metadata. Read-only
	// environment surface; typically injected by CI.
	CommitSHA string

	// DiagLevel filters the SDK's own stderr diagnostics (debug, info,
	// warn, error).
	DiagLevel string
}

// FromEnv builds a Config from the process environment, loading a .env file
// first when one is present. A malformed value is a ConfigurationError, not
// a silent fallback to the default.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		APIKey:      os.Getenv("TREEBEARD_API_KEY"),
		ProjectName: os.Getenv("TREEBEARD_PROJECT_NAME"),
		Endpoint:    getEnv("TREEBEARD_ENDPOINT", DefaultEndpoint),
		CommitSHA:   getEnv("TREEBEARD_COMMIT_SHA", os.Getenv("GIT_SHA")),
		DiagLevel:   getEnv("TREEBEARD_DIAG_LEVEL", "info"),
	}

	for _, n := range []struct {
		key  string
		dest *int
	}{
		{"TREEBEARD_BATCH_SIZE", &cfg.BatchSize},
		{"TREEBEARD_RETRY_MAX", &cfg.RetryMax},
	} {
		v := os.Getenv(n.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, &ConfigurationError{Key: n.key, Reason: err.Error()}
		}
		*n.dest = parsed
	}

	for _, b := range []struct {
		key  string
		dest *bool
	}{
		{"TREEBEARD_CAPTURE_STDLOG", &cfg.CaptureStdLog},
		{"TREEBEARD_CAPTURE_PANICS", &cfg.CapturePanics},
	} {
		v := os.Getenv(b.key)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, &ConfigurationError{Key: b.key, Reason: err.Error()}
		}
		*b.dest = parsed
	}

	for _, d := range []struct {
		key  string
		dest *time.Duration
	}{
		{"TREEBEARD_FLUSH_INTERVAL", &cfg.FlushInterval},
		{"TREEBEARD_DELIVERY_TIMEOUT", &cfg.DeliveryTimeout},
		{"TREEBEARD_RETRY_BASE_DELAY", &cfg.RetryBaseDelay},
		{"TREEBEARD_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	} {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, &ConfigurationError{Key: d.key, Reason: err.Error()}
		}
		*d.dest = parsed
	}

	return cfg, nil
}

// fileConfig mirrors Config with wire-friendly types for treebeard.toml.
type fileConfig struct {
	APIKey          string `toml:"api_key"`
	ProjectName     string `toml:"project_name"`
	Endpoint        string `toml:"endpoint"`
	BatchSize       int    `toml:"batch_size"`
	FlushInterval   string `toml:"flush_interval"`
	CaptureStdLog   bool   `toml:"capture_stdlog"`
	CapturePanics   bool   `toml:"capture_panics"`
	DeliveryTimeout string `toml:"delivery_timeout"`
	RetryMax        int    `toml:"retry_max"`
	RetryBaseDelay  string `toml:"retry_base_delay"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	CommitSHA       string `toml:"commit_sha"`
	DiagLevel       string `toml:"diag_level"`
}

// FromFile builds a Config from a treebeard.toml file. Durations are
// strings in Go syntax ("2s", "500ms").
func FromFile(path string) (Config, error) {
	var raw fileConfig
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Config{}, &ConfigurationError{Key: path, Reason: err.Error()}
	}

	cfg := Config{
		APIKey:        raw.APIKey,
		ProjectName:   raw.ProjectName,
		Endpoint:      raw.Endpoint,
		BatchSize:     raw.BatchSize,
		CaptureStdLog: raw.CaptureStdLog,
		CapturePanics: raw.CapturePanics,
		RetryMax:      raw.RetryMax,
		CommitSHA:     raw.CommitSHA,
		DiagLevel:     raw.DiagLevel,
	}

	for _, d := range []struct {
		key  string
		raw  string
		dest *time.Duration
	}{
		{"flush_interval", raw.FlushInterval, &cfg.FlushInterval},
		{"delivery_timeout", raw.DeliveryTimeout, &cfg.DeliveryTimeout},
		{"retry_base_delay", raw.RetryBaseDelay, &cfg.RetryBaseDelay},
		{"shutdown_timeout", raw.ShutdownTimeout, &cfg.ShutdownTimeout},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, &ConfigurationError{Key: d.key, Reason: err.Error()}
		}
		*d.dest = parsed
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.DeliveryTimeout == 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	if c.RetryMax == 0 {
		c.RetryMax = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.DiagLevel == "" {
		c.DiagLevel = "info"
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return &ConfigurationError{Key: "Endpoint", Reason: fmt.Sprintf("not a valid URL: %v", err)}
	}
	switch u.Scheme {
	case "http", "https", "nats", "cloudwatch", "ws", "wss":
	default:
		return &ConfigurationError{Key: "Endpoint", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}

	// The live-tail viewer is a local dev tool and may run unauthenticated.
	if c.APIKey == "" && u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "cloudwatch" {
		return &ConfigurationError{Key: "APIKey", Reason: "required"}
	}
	if c.ProjectName == "" {
		return &ConfigurationError{Key: "ProjectName", Reason: "required"}
	}
	if c.BatchSize < 0 {
		return &ConfigurationError{Key: "BatchSize", Reason: "must be positive"}
	}
	if c.FlushInterval < 0 {
		return &ConfigurationError{Key: "FlushInterval", Reason: "must be positive"}
	}
	if c.RetryMax < 0 {
		return &ConfigurationError{Key: "RetryMax", Reason: "must be positive"}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

