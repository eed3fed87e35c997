// Package logging builds the process-wide slog logger from configuration:
// a console handler, a rotating main log file, and a rotating warn+error
// file, fanned out through a single multi-handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"offerdex/internal/config"
)

var (
	closersMu sync.Mutex
	closers   []io.Closer
)

// Initialize builds the logger from cfg and installs it as the slog
// default.
func Initialize(cfg config.LoggingConfig) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	slog.SetDefault(logger)

	slog.Info("logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"dir", cfg.Dir,
		"console", cfg.Console.Enabled,
		"file", cfg.File.Enabled,
	)
	return nil
}

// NewLogger assembles the handler stack for cfg. File handlers write
// through lumberjack for rotation; Shutdown closes everything this
// function opened.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var handlers []slog.Handler

	if cfg.Console.Enabled {
		h := buildHandler(os.Stdout, cfg.Console.Format, parseLevel(cfg.Console.Level))
		handlers = append(handlers, h)
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}

		main := newRotatingWriter(cfg, "offerdex.log")
		handlers = append(handlers, buildHandler(main, cfg.File.Format, parseLevel(cfg.File.Level)))

		// Warnings and errors also land in a dedicated file so operators
		// can tail problems without the request noise.
		errs := newRotatingWriter(cfg, "errors.log")
		eh := buildHandler(errs, cfg.File.Format, slog.LevelWarn)
		handlers = append(handlers, NewLevelFilter(eh, slog.LevelWarn))
	}

	if len(handlers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), nil
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = NewMultiHandler(handlers...)
	}

	if cfg.Dedup.Enabled {
		dh := NewDedupHandler(handler, DedupConfig{
			BatchSize:    cfg.Dedup.BatchSize,
			FlushTimeout: cfg.Dedup.FlushTimeout.Std(),
		})
		registerCloser(dh)
		handler = dh
	}

	return slog.New(handler), nil
}

// Shutdown flushes and closes every writer and handler opened by
// NewLogger, in reverse open order.
func Shutdown() error {
	closersMu.Lock()
	defer closersMu.Unlock()

	var firstErr error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closers = nil
	return firstErr
}

func newRotatingWriter(cfg config.LoggingConfig, name string) io.Writer {
	lj := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	}
	registerCloser(lj)

	if !cfg.File.Async {
		return lj
	}
	aw := NewAsyncWriter(lj)
	registerCloser(aw)
	return aw
}

func registerCloser(c io.Closer) {
	closersMu.Lock()
	defer closersMu.Unlock()
	closers = append(closers, c)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "console":
		return NewConsoleHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}
