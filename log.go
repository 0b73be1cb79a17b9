package treebeard

import (
	"context"
	"time"

	"github.com/treebeardhq/treebeard-go/internal/caller"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// Fields is free-form structured metadata attached to a log entry.
type Fields map[string]interface{}

// LogEntry is a buffered log record. Immutable once appended.
type LogEntry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    caller.Frame
	TraceID   string
	SpanID    string
}

// Package-level convenience entry points. All of them resolve caller info,
// stamp the ambient trace scope, and delegate to the engine; before Init
// they are silent no-ops.

func Trace(ctx context.Context, msg string, fields ...Fields) {
	GetInstance().emit(ctx, LevelTrace, msg, mergeFields(fields), caller.Resolve(1))
}

func Debug(ctx context.Context, msg string, fields ...Fields) {
	GetInstance().emit(ctx, LevelDebug, msg, mergeFields(fields), caller.Resolve(1))
}

func Info(ctx context.Context, msg string, fields ...Fields) {
	GetInstance().emit(ctx, LevelInfo, msg, mergeFields(fields), caller.Resolve(1))
}

func Warn(ctx context.Context, msg string, fields ...Fields) {
	GetInstance().emit(ctx, LevelWarn, msg, mergeFields(fields), caller.Resolve(1))
}

func Error(ctx context.Context, msg string, fields ...Fields) {
	GetInstance().emit(ctx, LevelError, msg, mergeFields(fields), caller.Resolve(1))
}

func Fatal(ctx context.Context, msg string, fields ...Fields) {
	c := GetInstance()
	c.emit(ctx, LevelFatal, msg, mergeFields(fields), caller.Resolve(1))
	// A fatal entry is usually the last thing the process says. Push it out
	// now instead of waiting for the scheduler.
	_ = c.Flush(ctx)
}

func mergeFields(fields []Fields) Fields {
	switch len(fields) {
	case 0:
		return nil
	case 1:
		return fields[0]
	}
	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}
