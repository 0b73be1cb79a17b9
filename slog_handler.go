package treebeard

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/treebeardhq/treebeard-go/internal/caller"
)

// SlogHandler feeds log/slog records into the engine, so applications
// already structured around slog adopt the SDK without touching call sites:
//
//	slog.SetDefault(slog.New(treebeard.NewSlogHandler(slog.LevelInfo)))
type SlogHandler struct {
	minLevel slog.Level
	attrs    []slog.Attr
	groups   []string
}

func NewSlogHandler(minLevel slog.Level) *SlogHandler {
	return &SlogHandler{minLevel: minLevel}
}

func (h *SlogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	c := GetInstance()
	if c == nil {
		return nil
	}

	fields := make(Fields, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		fields[h.attrKey(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[h.attrKey(a.Key)] = a.Value.Any()
		return true
	})

	frame := caller.Unknown
	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		if f, _ := fs.Next(); f.File != "" {
			frame = caller.Frame{File: f.File, Line: f.Line, Function: f.Function}
		}
	}

	c.emit(ctx, slogLevel(r.Level), r.Message, fields, frame)
	return nil
}

func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &h2
}

func (h *SlogHandler) WithGroup(name string) slog.Handler {
	h2 := *h
	h2.groups = append(append([]string{}, h.groups...), name)
	return &h2
}

func (h *SlogHandler) attrKey(key string) string {
	if len(h.groups) == 0 {
		return key
	}
	prefix := ""
	for _, g := range h.groups {
		prefix += g + "."
	}
	return prefix + key
}

func slogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelDebug:
		return LevelTrace
	case level < slog.LevelInfo:
		return LevelDebug
	case level < slog.LevelWarn:
		return LevelInfo
	case level < slog.LevelError:
		return LevelWarn
	default:
		return LevelError
	}
}
