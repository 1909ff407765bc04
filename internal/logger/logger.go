// Package logger builds the zerolog logger shared by the server.
package logger

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var ErrUnsupportedFormat = errors.New("unsupported log format")

// New constructs a zerolog logger based on level and format configuration.
// Format is "console" or "json".
func New(level, format string) (zerolog.Logger, error) {
	return newWithWriter(os.Stdout, level, format)
}

func newWithWriter(out io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}

	var base zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		base = zerolog.New(out).With().Timestamp().Logger()
	case "console":
		consoleWriter := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
		base = zerolog.New(consoleWriter).With().Timestamp().Logger()
	default:
		return zerolog.Logger{}, ErrUnsupportedFormat
	}

	return base.Level(lvl), nil
}
