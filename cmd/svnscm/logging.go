package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"svnscm/internal/outputlog"
	"svnscm/internal/svn"
)

const (
	envLogLevel = "SVNSCM_LOG_LEVEL"
	envLogFile  = "SVNSCM_LOG_FILE"
)

// resolveLogLevel prefers the flag, then SVNSCM_LOG_LEVEL, then info.
func resolveLogLevel(flagValue string) (log.Level, error) {
	value := strings.TrimSpace(flagValue)
	if value == "" {
		value = strings.TrimSpace(os.Getenv(envLogLevel))
	}
	if value == "" {
		return log.InfoLevel, nil
	}
	if strings.EqualFold(value, "warning") {
		return log.WarnLevel, nil
	}
	level, err := log.ParseLevel(strings.ToLower(value))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("invalid log level %q", value)
	}
	return level, nil
}

// newLogHandler builds the console (or SVNSCM_LOG_FILE) handler and tees the
// svn command log group to sink.
func newLogHandler(level log.Level, sink outputlog.Sink) (slog.Handler, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	if path := strings.TrimSpace(os.Getenv(envLogFile)); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		Prefix:          "svnscm",
		ReportTimestamp: true,
	})
	handler := outputlog.NewTeeHandler(logger, outputlog.Options{
		Groups:   []string{svn.LogGroup},
		MinLevel: slog.LevelInfo,
	}, sink)
	return handler, closer, nil
}
