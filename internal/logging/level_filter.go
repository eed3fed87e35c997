package logging

import (
	"context"
	"log/slog"
)

// LevelFilter drops records below min before they reach the wrapped
// handler. It exists for the errors-only file, whose underlying handler
// is built with its own level already at warn; the filter keeps the gate
// in one place when the wrapped handler is shared or reconfigured.
type LevelFilter struct {
	handler slog.Handler
	min     slog.Level
}

func NewLevelFilter(handler slog.Handler, min slog.Level) *LevelFilter {
	return &LevelFilter{handler: handler, min: min}
}

func (h *LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.handler.Enabled(ctx, level)
}

func (h *LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.min {
		return nil
	}
	return h.handler.Handle(ctx, r)
}

func (h *LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelFilter{handler: h.handler.WithAttrs(attrs), min: h.min}
}

func (h *LevelFilter) WithGroup(name string) slog.Handler {
	return &LevelFilter{handler: h.handler.WithGroup(name), min: h.min}
}
