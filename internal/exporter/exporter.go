// Package exporter delivers batches of buffered telemetry to an ingestion
// backend. The backend is selected by the endpoint URL scheme so the engine
// stays agnostic of the transport.
package exporter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/treebeardhq/treebeard-go/internal/runtimeinfo"
	"github.com/treebeardhq/treebeard-go/pkg/logger"
)

// LogEntry is the wire form of a buffered log entry.
type LogEntry struct {
	Timestamp int64                  `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Props     map[string]interface{} `json:"props,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Function  string                 `json:"function,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
}

// Object is the wire form of a registered application object.
type Object struct {
	Name         string                 `json:"name"`
	ID           string                 `json:"id,omitempty"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
	RegisteredAt int64                  `json:"registered_at"`
}

// Batch is a single delivery unit.
type Batch struct {
	ProjectName string           `json:"project_name"`
	SDKVersion  string           `json:"sdk_version"`
	CommitSHA   string           `json:"commit_sha,omitempty"`
	Host        runtimeinfo.Facts `json:"host"`
	Logs        []LogEntry       `json:"logs"`
	Objects     []Object         `json:"objects,omitempty"`
}

// Exporter sends one batch per call. Implementations retry internally within
// their bounded policy; a returned error means the batch is lost.
type Exporter interface {
	Export(ctx context.Context, batch *Batch) error
	Close(ctx context.Context) error
}

// Config carries the delivery-relevant subset of the SDK configuration.
type Config struct {
	Endpoint       string
	APIKey         string
	ProjectName    string
	Timeout        time.Duration
	RetryMax       int
	RetryBaseDelay time.Duration
	Diag           *logger.Logger
}

// DeliveryError wraps a delivery failure after all retry attempts were
// exhausted. It is reported on the diagnostic channel and never surfaced to
// the instrumented application's log calls.
type DeliveryError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// New builds the exporter for the configured endpoint.
//
//	http(s)://   JSON batch POST to the ingestion API
//	nats://      publish to a co-located collector subject
//	cloudwatch://group/stream   AWS CloudWatch Logs
//	ws(s)://     live-tail stream to a local dev viewer
func New(ctx context.Context, cfg Config) (Exporter, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}

	switch u.Scheme {
	case "http", "https":
		return newHTTPExporter(cfg), nil
	case "nats":
		return newNATSExporter(cfg)
	case "cloudwatch":
		return newCloudWatchExporter(ctx, cfg, u)
	case "ws", "wss":
		return newLivetailExporter(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
}
