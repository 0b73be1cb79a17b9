package exporter

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const livetailWriteDeadline = 2 * time.Second

// livetailExporter streams batches to a local dev viewer over a WebSocket.
// Delivery guarantees are deliberately weak: a slow or absent viewer drops
// batches instead of ever blocking the instrumented application.
type livetailExporter struct {
	cfg    Config
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

func newLivetailExporter(cfg Config) *livetailExporter {
	return &livetailExporter{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}
}

func (e *livetailExporter) Export(ctx context.Context, batch *Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		header := http.Header{}
		if e.cfg.APIKey != "" {
			header.Set("Authorization", "Bearer "+e.cfg.APIKey)
		}
		conn, _, err := e.dialer.DialContext(ctx, e.cfg.Endpoint, header)
		if err != nil {
			return &DeliveryError{Endpoint: e.cfg.Endpoint, Attempts: 1, Err: err}
		}
		e.conn = conn
	}

	e.conn.SetWriteDeadline(time.Now().Add(livetailWriteDeadline))
	if err := e.conn.WriteJSON(batch); err != nil {
		// Viewer gone or too slow. Drop the connection and let the next
		// flush redial.
		e.conn.Close()
		e.conn = nil
		return &DeliveryError{Endpoint: e.cfg.Endpoint, Attempts: 1, Err: err}
	}
	return nil
}

func (e *livetailExporter) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	deadline := time.Now().Add(livetailWriteDeadline)
	e.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := e.conn.Close()
	e.conn = nil
	return err
}
