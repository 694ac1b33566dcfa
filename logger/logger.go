// Package logger builds the zerolog loggers handed to every component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with component. APP_ENV=dev selects a
// human-readable console writer; anything else logs JSON to stdout.
// An unknown level falls back to info.
func New(component, level string) zerolog.Logger {
	return newWithWriter(os.Stdout, component, level, strings.ToLower(os.Getenv("APP_ENV")) == "dev")
}

func newWithWriter(out io.Writer, component, level string, console bool) zerolog.Logger {
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("component", component).Logger()
}
