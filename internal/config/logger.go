package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the shared structured logger every package logs
// through. "console" gives human-readable output for local
// development; anything else emits newline-delimited JSON suitable for
// log aggregation in production.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer = os.Stdout
	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}).
			Level(level).
			With().Timestamp().Logger()
	} else {
		logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()
	}
	return logger
}
