package treebeard

import (
	"context"
	"time"

	"github.com/treebeardhq/treebeard-go/internal/caller"
)

// TraceRecord tracks a unit of work from start to completion so duration
// and outcome are reported independently of individual log entries.
type TraceRecord struct {
	TraceID   string
	SpanID    string
	Name      string
	StartedAt time.Time
	Completed bool
	Success   bool
}

type traceKey struct {
	traceID string
	spanID  string
}

// StartTrace opens a TraceRecord for (traceID, spanID) and logs the start.
func (c *Core) StartTrace(ctx context.Context, traceID, spanID, name string, fields Fields) {
	if c == nil {
		return
	}

	c.tracesMu.Lock()
	c.traces[traceKey{traceID, spanID}] = &TraceRecord{
		TraceID:   traceID,
		SpanID:    spanID,
		Name:      name,
		StartedAt: time.Now(),
	}
	c.tracesMu.Unlock()

	enriched := make(Fields, len(fields)+1)
	for k, v := range fields {
		enriched[k] = v
	}
	enriched["trace_name"] = name
	c.emitStamped(ctx, LevelTrace, "trace started", enriched, traceID, spanID)
}

// CompleteTrace closes the record and logs duration and outcome. Completing
// a trace that was never started is tolerated: it is recorded as an
// orphaned completion and reported on the diagnostic channel.
func (c *Core) CompleteTrace(traceID, spanID string, success bool) {
	if c == nil {
		return
	}

	c.tracesMu.Lock()
	record, ok := c.traces[traceKey{traceID, spanID}]
	if ok {
		delete(c.traces, traceKey{traceID, spanID})
	}
	c.tracesMu.Unlock()

	if !ok {
		c.diag.Warn("orphaned trace completion",
			"trace_id", traceID,
			"span_id", spanID,
		)
		c.emitStamped(nil, LevelWarn, "trace completed without start", Fields{
			"orphaned": true,
			"success":  success,
		}, traceID, spanID)
		return
	}

	record.Completed = true
	record.Success = success

	level := LevelTrace
	if !success {
		level = LevelError
	}
	c.emitStamped(nil, level, "trace completed", Fields{
		"trace_name":  record.Name,
		"success":     success,
		"duration_ms": time.Since(record.StartedAt).Milliseconds(),
	}, traceID, spanID)
}

// emitStamped appends an entry carrying explicit trace identifiers, used by
// the trace lifecycle where the ids come from arguments rather than the
// ambient context.
func (c *Core) emitStamped(ctx context.Context, level Level, msg string, fields Fields, traceID, spanID string) {
	entry := LogEntry{
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Timestamp: time.Now(),
		Caller:    caller.Resolve(2),
		TraceID:   traceID,
		SpanID:    spanID,
	}

	if ctx != nil {
		if tc, ok := TraceContextFrom(ctx); ok {
			if corr := tc.correlationSnapshot(); corr != nil {
				for k, v := range corr {
					if _, exists := entry.Fields[k]; !exists {
						entry.Fields[k] = v
					}
				}
			}
		}
	}

	c.append(entry)
}
