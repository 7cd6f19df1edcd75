// Package sysutil configures process-wide logging for the reviewd binary.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLogLevel sets the global zerolog level. Empty or unknown values fall
// back to info; "warning" is accepted as an alias for warn.
func SetLogLevel(lvl string) {
	lvl = strings.ToLower(strings.TrimSpace(lvl))
	if lvl == "warning" {
		lvl = "warn"
	}
	level, err := zerolog.ParseLevel(lvl)
	if err != nil || lvl == "" || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// LoggerOptions configures SetupLogger.
type LoggerOptions struct {
	Level   string
	Pretty  bool
	Service string
	// Out defaults to stderr.
	Out io.Writer
}

// SetupLogger replaces the global logger. Pretty selects the console writer
// used for local runs; otherwise output is JSON lines.
func SetupLogger(opts LoggerOptions) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	SetLogLevel(opts.Level)
	lg := zerolog.New(out).With().Timestamp().Logger()
	if opts.Service != "" {
		lg = lg.With().Str("service", opts.Service).Logger()
	}
	log.Logger = lg
	return lg
}
