// Package bootstrap wires together the application's process-level
// concerns (logger construction, fx lifecycle hooks) that every entrypoint
// needs regardless of which components it assembles.
package bootstrap

import (
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/eternis-tender/tender-pipeline/pkg/config"
)

// customLogWriter routes logs to stderr if they contain "err" (which also
// matches "error") or "failed", otherwise to stdout, so log shipping can split severity without parsing
// structured fields.
type customLogWriter struct{}

func (w *customLogWriter) Write(p []byte) (n int, err error) {
	logContent := strings.ToLower(string(p))
	if strings.Contains(logContent, "err") || strings.Contains(logContent, "failed") {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// NewBootstrapLogger creates a logger for use before Config has loaded
// (e.g. to report a config-load failure itself).
func NewBootstrapLogger() *log.Logger {
	return log.NewWithOptions(&customLogWriter{}, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           log.InfoLevel,
		TimeFormat:      time.Kitchen,
	})
}

// NewLogger builds the application logger from cfg, honoring LogFormat
// (json or text) and LogLevel.
func NewLogger(cfg *config.Config) *log.Logger {
	opts := log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Level:           parseLevel(cfg.LogLevel),
	}
	if cfg.LogFormat == "json" {
		opts.Formatter = log.JSONFormatter
	}

	var writer = &customLogWriter{}
	return log.NewWithOptions(writer, opts)
}

func parseLevel(raw string) log.Level {
	level, err := log.ParseLevel(raw)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
