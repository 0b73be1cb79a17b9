package treebeard

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogHandlerBridgesRecords(t *testing.T) {
	core, capture := initWithCapture(t, Config{BatchSize: 100})

	log := slog.New(NewSlogHandler(slog.LevelInfo))
	log.Info("order shipped", "order_id", "o-42", "items", 3)

	if err := core.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	logs := capture.allLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.Message != "order shipped" || entry.Level != "info" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Props["order_id"] != "o-42" {
		t.Errorf("attrs lost: %v", entry.Props)
	}
	if !strings.HasSuffix(entry.File, "slog_handler_test.go") {
		t.Errorf("source frame = %q, want this test file", entry.File)
	}
}

func TestSlogHandlerHonorsMinLevel(t *testing.T) {
	core, capture := initWithCapture(t, Config{BatchSize: 100})

	log := slog.New(NewSlogHandler(slog.LevelWarn))
	log.Info("below threshold")
	log.Warn("at threshold")

	if err := core.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	logs := capture.allLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}
	if logs[0].Message != "at threshold" || logs[0].Level != "warn" {
		t.Errorf("entry = %+v", logs[0])
	}
}

func TestSlogHandlerGroupsAndAttrs(t *testing.T) {
	core, capture := initWithCapture(t, Config{BatchSize: 100})

	log := slog.New(NewSlogHandler(slog.LevelInfo)).
		With("service", "billing").
		WithGroup("db").
		With("driver", "postgres")
	log.Info("query ran", "rows", 7)

	if err := core.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	logs := capture.allLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}
	props := logs[0].Props
	if props["service"] != "billing" {
		t.Errorf("pre-group attr lost: %v", props)
	}
	if props["db.driver"] != "postgres" || props["db.rows"] != int64(7) {
		t.Errorf("group prefix missing: %v", props)
	}
}

func TestSlogHandlerCarriesAmbientScope(t *testing.T) {
	core, capture := initWithCapture(t, Config{BatchSize: 100})

	tc := NewTraceContext("slog-scope")
	log := slog.New(NewSlogHandler(slog.LevelInfo))
	_ = Run(context.Background(), tc, func(ctx context.Context) error {
		log.InfoContext(ctx, "inside scope")
		return nil
	})

	if err := core.Flush(context.Background()); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	logs := capture.allLogs()
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}
	if logs[0].TraceID != tc.TraceID {
		t.Errorf("trace id = %q, want %q", logs[0].TraceID, tc.TraceID)
	}
}

func TestSlogLevelMapping(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want Level
	}{
		{slog.LevelDebug - 4, LevelTrace},
		{slog.LevelDebug, LevelDebug},
		{slog.LevelInfo, LevelInfo},
		{slog.LevelWarn, LevelWarn},
		{slog.LevelError, LevelError},
		{slog.LevelError + 4, LevelError},
	}
	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
