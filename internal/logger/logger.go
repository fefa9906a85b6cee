// Package logger provides the broker's structured logging, one
// component sub-logger per component of SYSTEM OVERVIEW (spec §2).
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global base logger; component loggers derive from it.
var Log zerolog.Logger

// Initialize configures the global logger.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "inspector-broker").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// Framer returns the logger for the message framer (spec §4.1).
func Framer() *zerolog.Logger {
	l := Log.With().Str("component", "framer").Logger()
	return &l
}

// Correlator returns the logger for the command correlator (spec §4.2).
func Correlator() *zerolog.Logger {
	l := Log.With().Str("component", "correlator").Logger()
	return &l
}

// Session returns the logger for a session's state machine and event
// demultiplexer (spec §4.3, §4.5).
func Session() *zerolog.Logger {
	l := Log.With().Str("component", "session").Logger()
	return &l
}

// SourceMap returns the logger for the source-map engine (spec §4.4).
func SourceMap() *zerolog.Logger {
	l := Log.With().Str("component", "sourcemap").Logger()
	return &l
}

// Registry returns the logger for the session registry (spec §4.6).
func Registry() *zerolog.Logger {
	l := Log.With().Str("component", "registry").Logger()
	return &l
}

// Server returns the logger for the thin outer HTTP adapter.
func Server() *zerolog.Logger {
	l := Log.With().Str("component", "server").Logger()
	return &l
}
