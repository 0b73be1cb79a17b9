package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsExporter publishes batches to a co-located collector over NATS
// JetStream. Useful when the application already runs next to a message bus
// and outbound HTTP is restricted.
type natsExporter struct {
	cfg     Config
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

func newNATSExporter(cfg Config) (*natsExporter, error) {
	diag := cfg.Diag

	nc, err := nats.Connect(cfg.Endpoint,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil && diag != nil {
				diag.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if diag != nil {
				diag.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	return &natsExporter{
		cfg:     cfg,
		nc:      nc,
		js:      js,
		subject: "treebeard.ingest." + cfg.ProjectName,
	}, nil
}

func (e *natsExporter) Export(ctx context.Context, batch *Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	// Synchronous publish: the ack is the delivery guarantee the engine's
	// exactly-once accounting relies on.
	if _, err := e.js.Publish(e.subject, data, nats.Context(ctx)); err != nil {
		return &DeliveryError{Endpoint: e.cfg.Endpoint, Attempts: 1, Err: err}
	}
	return nil
}

func (e *natsExporter) Close(ctx context.Context) error {
	if e.nc != nil {
		e.nc.Close()
	}
	return nil
}
