// Package log builds the process-wide zerolog.Logger every other
// package receives by constructor injection.
package log

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Setup creates and configures the logger for level, writing structured
// JSON to stdout.
func Setup(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(os.Stdout).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
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

// Logger creates a default logger at info level.
func Logger() zerolog.Logger {
	return Setup("info")
}
