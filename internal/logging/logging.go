// Package logging builds the zerolog logger shared by the pipeline and the CLI.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger = New(os.Stderr, false, true)

// New returns a console logger writing to w. Debug lowers the level from warn
// to debug.
func New(w io.Writer, debug bool, noColor bool) zerolog.Logger {
	lvl := zerolog.WarnLevel
	if debug {
		lvl = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Init replaces the package logger. It is called once from the root command.
func Init(debug bool, noColor bool) {
	logger = New(os.Stderr, debug, noColor)
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
