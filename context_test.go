package treebeard

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"testing"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]+$`)

func TestGeneratedIdentifiers(t *testing.T) {
	traceID := GenerateTraceID()
	spanID := GenerateSpanID()

	if len(traceID) != 32 {
		t.Errorf("trace id length = %d, want 32", len(traceID))
	}
	if len(spanID) != 16 {
		t.Errorf("span id length = %d, want 16", len(spanID))
	}
	if !hexRe.MatchString(traceID) || !hexRe.MatchString(spanID) {
		t.Errorf("identifiers are not lowercase hex: %s %s", traceID, spanID)
	}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateSpanID()
		if seen[id] {
			t.Fatalf("span id collision after %d draws", i)
		}
		seen[id] = true
	}
}

func TestRunBindsForDynamicExtentOnly(t *testing.T) {
	outer := context.Background()
	tc := NewTraceContext("op")

	err := Run(outer, tc, func(ctx context.Context) error {
		got, ok := TraceContextFrom(ctx)
		if !ok || got != tc {
			t.Error("ambient context not visible inside Run")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, ok := TraceContextFrom(outer); ok {
		t.Error("Run leaked the scope into the caller's context")
	}
}

func TestNestedScopesShadowAndRestore(t *testing.T) {
	outer := NewTraceContext("outer")
	inner := NewTraceContext("inner")

	_ = Run(context.Background(), outer, func(ctx context.Context) error {
		_ = Run(ctx, inner, func(ctx context.Context) error {
			got, _ := TraceContextFrom(ctx)
			if got != inner {
				t.Error("inner scope not visible inside nested Run")
			}
			return nil
		})
		got, _ := TraceContextFrom(ctx)
		if got != outer {
			t.Error("outer scope not restored after nested Run")
		}
		return nil
	})
}

func TestRunAsyncIsolation(t *testing.T) {
	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		tc := NewTraceContext("worker")
		go func(tc *TraceContext) {
			defer wg.Done()
			done := RunAsync(context.Background(), tc, func(ctx context.Context) error {
				for j := 0; j < 100; j++ {
					got, ok := TraceContextFrom(ctx)
					if !ok || got.TraceID != tc.TraceID {
						t.Error("scope observed a foreign trace context")
						return nil
					}
				}
				return nil
			})
			<-done
		}(tc)
	}
	wg.Wait()
}

func TestRunAsyncRecoversPanics(t *testing.T) {
	ResetForTesting()

	done := RunAsync(context.Background(), NewTraceContext("explodes"), func(ctx context.Context) error {
		panic("kaboom")
	})

	err := <-done
	if err == nil {
		t.Fatal("expected panic to surface as an error")
	}
	if !strings.Contains(err.Error(), "kaboom") {
		t.Errorf("panic value lost: %v", err)
	}
}

func TestChildContext(t *testing.T) {
	parent := NewTraceContext("parent")
	parent.SetCorrelation("user_id", "u-1")

	child := parent.Child("child")

	if child.TraceID != parent.TraceID {
		t.Error("child must stay in the parent's trace")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child must get its own span id")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Errorf("parent span link = %q, want %q", child.ParentSpanID, parent.SpanID)
	}
	if child.correlationSnapshot()["user_id"] != "u-1" {
		t.Error("correlation fields not inherited")
	}

	// Correlation set on the child must not flow back up.
	child.SetCorrelation("session_id", "s-9")
	if _, ok := parent.correlationSnapshot()["session_id"]; ok {
		t.Error("child correlation leaked into the parent")
	}
}
