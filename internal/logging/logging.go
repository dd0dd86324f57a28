// Package logging builds the zerolog logger shared by the fetchcoord tools.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel maps a config level name onto a zerolog level. Unknown names
// fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns a timestamped logger at level. format "json" writes raw JSON
// lines; anything else writes human-readable console output. A nil w means
// stdout.
func New(level, format string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}
