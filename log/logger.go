// Package log configures a new logger for an application.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	logrusadapter "logur.dev/adapter/logrus"
	"logur.dev/logur"
)

// Config holds details necessary for logging.
type Config struct {
	// Format specifies the output log format.
	// Accepted values are: json, logfmt
	Format string

	// Level is the minimum log level that should appear on the output.
	Level string

	// NoColor makes sure that no log output gets colorized.
	NoColor bool
}

// NewLogger creates a new logger writing to stdout.
func NewLogger(config Config) logur.Logger {
	return NewLoggerWithOutput(config, os.Stdout)
}

// NewLoggerWithOutput creates a new logger writing to out.
func NewLoggerWithOutput(config Config, out io.Writer) logur.Logger {
	logger := logrus.New()

	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:             config.NoColor,
		EnvironmentOverrideColors: true,
	})

	switch config.Format {
	case "logfmt":
		// Already the default

	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if level, err := logrus.ParseLevel(config.Level); err == nil {
		logger.SetLevel(level)
	}

	return logrusadapter.New(logger)
}

// WithFields returns a new contextual logger instance with context added to it.
func WithFields(logger logur.Logger, fields map[string]interface{}) logur.Logger {
	return logur.WithFields(logger, fields)
}

