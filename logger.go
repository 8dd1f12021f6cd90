package gpucache

import (
	"log/slog"

	"github.com/gogpu/gpucache/internal/logging"
)

// SetLogger configures the logger for gpucache and all its sub-packages.
// By default, gpucache produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by gpucache:
//   - [slog.LevelDebug]: cache misses, arena growth
//   - [slog.LevelInfo]: context creation and destruction
//   - [slog.LevelWarn]: non-fatal issues during teardown
//
// Example:
//
//	gpucache.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by gpucache.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
