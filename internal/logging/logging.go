// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/apiconsole/internal/config"
)

// New creates a zerolog.Logger writing to stdout.
func New(cfg *config.Config) zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg.Log.Level, cfg.Log.Format, cfg.Server.ServiceName)
}

// NewWithWriter creates a logger writing to out. format "json" emits one
// JSON object per line; anything else uses the human-readable console
// writer.
func NewWithWriter(out io.Writer, level, format, service string) zerolog.Logger {
	if format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Level(parseLevel(level))
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
