package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"
)

const maxBackoff = 5 * time.Second

// httpExporter posts gzip-compressed JSON batches to the ingestion API.
type httpExporter struct {
	cfg     Config
	client  *http.Client
	parsers fastjson.ParserPool
}

func newHTTPExporter(cfg Config) *httpExporter {
	return &httpExporter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (e *httpExporter) Export(ctx context.Context, batch *Batch) error {
	body, err := encodeBatch(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	var lastErr error
	backoff := e.cfg.RetryBaseDelay

	for attempt := 1; attempt <= e.cfg.RetryMax; attempt++ {
		retryable, err := e.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return &DeliveryError{Endpoint: e.cfg.Endpoint, Attempts: attempt, Err: err}
		}

		if attempt < e.cfg.RetryMax {
			select {
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			case <-ctx.Done():
				return &DeliveryError{Endpoint: e.cfg.Endpoint, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}

	return &DeliveryError{Endpoint: e.cfg.Endpoint, Attempts: e.cfg.RetryMax, Err: lastErr}
}

// post sends one attempt. The bool reports whether the failure is worth
// retrying: network errors and server-side statuses are, client errors such
// as a rejected API key are not.
func (e *httpExporter) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("X-Project-Name", e.cfg.ProjectName)

	resp, err := e.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("ingestion endpoint returned HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, fmt.Errorf("ingestion endpoint rejected batch: HTTP %d", resp.StatusCode)
	}

	if status := e.responseStatus(respBody); status != "" && status != "ok" {
		return false, fmt.Errorf("ingestion endpoint reported status %q", status)
	}
	return false, nil
}

// responseStatus extracts the "status" field from an acknowledgement body.
// Bodies that are empty or not JSON are treated as a bare 2xx ack.
func (e *httpExporter) responseStatus(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	parser := e.parsers.Get()
	defer e.parsers.Put(parser)

	v, err := parser.ParseBytes(body)
	if err != nil {
		return ""
	}
	return string(v.GetStringBytes("status"))
}

func (e *httpExporter) Close(ctx context.Context) error {
	e.client.CloseIdleConnections()
	return nil
}

func encodeBatch(batch *Batch) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(batch); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
