package frameq

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger for frameq and all its sub-packages.
// By default frameq produces no log output.
//
// SetLogger is safe for concurrent use: it stores the new logger
// atomically. Pass nil to restore the default silent behavior.
//
// Log levels used by frameq:
//   - [slog.LevelDebug]: per-frame dispatch statistics, registry loads
//   - [slog.LevelInfo]: device lifecycle events (adapter selected, rebuild)
//   - [slog.LevelWarn]: non-fatal issues (resize failures, release errors)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by frameq. Sub-packages
// (backend/headless, backend/wgpu) call this to share the same logger
// configuration without introducing import cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
