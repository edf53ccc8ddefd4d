// Package util provides small process-wide initialization helpers shared
// by cmd/indexer.
package util

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger builds a zerolog logger: pretty console output when stdout
// is a terminal, structured JSON otherwise.
func InitLogger() zerolog.Logger {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if isTerminal() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Caller().
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "rangeindexer").
		Logger()
}

// SetLogLevel parses levelStr ("debug", "info", "warn", "error") and
// applies it globally, falling back to info on anything unrecognized.
func SetLogLevel(levelStr string, logger zerolog.Logger) {
	var level zerolog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = zerolog.DebugLevel
	case "info", "":
		level = zerolog.InfoLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
		logger.Warn().Str("configured_level", levelStr).Msg("unknown log level, defaulting to info")
	}

	zerolog.SetGlobalLevel(level)
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
