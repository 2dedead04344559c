package logging

import (
	"os"

	"github.com/rs/zerolog"
)

var RootLogger zerolog.Logger = zerolog.New(
	zerolog.NewConsoleWriter(
		func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr },
		func(w *zerolog.ConsoleWriter) { w.TimeFormat = "15:04:05.000" })).Level(zerolog.InfoLevel).
	With().Timestamp().Logger()

// SetLevel changes the level of the root logger. Loggers derived before the
// call keep their level.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	RootLogger = RootLogger.Level(lvl)
	return nil
}

// Component returns a sub logger tagging every entry with the component and
// the address of the node it belongs to.
func Component(name, addr string) zerolog.Logger {
	return RootLogger.With().Str(name, addr).Logger()
}
