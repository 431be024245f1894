// Package logging constructs the loggers used across strand.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a logger entry for a named component. Level comes from
// the STRAND_LOG_LEVEL environment variable and defaults to warn so the TUI
// is not polluted by log lines.
func NewLogger(component string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	logger.SetLevel(parseLevel(os.Getenv("STRAND_LOG_LEVEL")))
	return logger.WithField("component", component)
}

// NewFileLogger creates a logger entry that appends to the given path.
// Used when the TUI owns the terminal and stderr is not visible.
func NewFileLogger(component, path string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
		DisableColors:   true,
	})
	logger.SetLevel(parseLevel(os.Getenv("STRAND_LOG_LEVEL")))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.SetOutput(os.Stderr)
		return logger.WithField("component", component)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// Fall back to stderr rather than dropping logs entirely.
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(f)
	}
	return logger.WithField("component", component)
}

func parseLevel(raw string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}
