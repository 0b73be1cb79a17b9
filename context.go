package treebeard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TraceContext identifies the logical operation ambient code is running in.
// It travels inside a context.Context, so every synchronous segment and
// every goroutine derived from the scope observes the same identifiers while
// unrelated concurrent scopes stay isolated.
type TraceContext struct {
	TraceID      string
	SpanID       string
	Name         string
	RequestID    string
	ParentSpanID string

	mu          sync.Mutex
	correlation map[string]string
}

// NewTraceContext creates a root context for a named operation with fresh
// trace and span identifiers.
func NewTraceContext(name string) *TraceContext {
	return &TraceContext{
		TraceID:   GenerateTraceID(),
		SpanID:    GenerateSpanID(),
		Name:      name,
		RequestID: uuid.NewString(),
	}
}

// Child creates a sub-operation context: same trace, new span, linked to
// this span as its parent. Correlation fields are inherited.
func (tc *TraceContext) Child(name string) *TraceContext {
	child := &TraceContext{
		TraceID:      tc.TraceID,
		SpanID:       GenerateSpanID(),
		Name:         name,
		RequestID:    tc.RequestID,
		ParentSpanID: tc.SpanID,
	}
	tc.mu.Lock()
	if len(tc.correlation) > 0 {
		child.correlation = make(map[string]string, len(tc.correlation))
		for k, v := range tc.correlation {
			child.correlation[k] = v
		}
	}
	tc.mu.Unlock()
	return child
}

// SetCorrelation records an identifier (e.g. user_id) that subsequent log
// entries within this scope are enriched with.
func (tc *TraceContext) SetCorrelation(key, value string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.correlation == nil {
		tc.correlation = make(map[string]string, 2)
	}
	tc.correlation[key] = value
}

func (tc *TraceContext) correlationSnapshot() map[string]string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(tc.correlation) == 0 {
		return nil
	}
	out := make(map[string]string, len(tc.correlation))
	for k, v := range tc.correlation {
		out[k] = v
	}
	return out
}

type ctxKey struct{}

// WithTraceContext returns a context carrying tc as the ambient trace scope.
func WithTraceContext(ctx context.Context, tc *TraceContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// TraceContextFrom returns the ambient trace scope, if any. Used by the
// engine and the object registry to stamp outgoing telemetry.
func TraceContextFrom(ctx context.Context) (*TraceContext, bool) {
	tc, ok := ctx.Value(ctxKey{}).(*TraceContext)
	return tc, ok
}

// Run executes fn synchronously with tc as the ambient context for the
// dynamic extent of the call. The caller's own ambient context is untouched:
// derivation, not mutation, scopes the binding.
func Run(ctx context.Context, tc *TraceContext, fn func(context.Context) error) error {
	return fn(WithTraceContext(ctx, tc))
}

// RunAsync executes fn on its own goroutine with tc ambient for everything
// fn does, including further goroutines it derives from its context.
// Concurrent RunAsync scopes never observe each other's identifiers. The
// returned channel yields fn's result exactly once. A panic inside fn is
// recovered, recorded, and reported as an error rather than crashing the
// host process.
func RunAsync(ctx context.Context, tc *TraceContext, fn func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	scoped := WithTraceContext(ctx, tc)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in traced operation %q: %v", tc.Name, r)
				if c := GetInstance(); c != nil {
					c.LogError(scoped, "panic in traced operation", err, nil)
				}
				done <- err
			}
		}()
		done <- fn(scoped)
	}()

	return done
}

// GenerateTraceID returns a 32-character hex trace identifier. Uniqueness is
// probabilistic, not coordinated.
func GenerateTraceID() string { return randomHex(16) }

// GenerateSpanID returns a 16-character hex span identifier.
func GenerateSpanID() string { return randomHex(8) }

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; fall back to
		// a UUID-derived value rather than emitting empty identifiers.
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:n*2]
	}
	return hex.EncodeToString(buf)
}
