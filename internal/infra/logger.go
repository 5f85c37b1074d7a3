package infra

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide logger. Development runs get a
// human-readable console stream at debug level; everything else emits JSON
// at info level for log collection.
func NewLogger(appEnv string) zerolog.Logger {
	if appEnv == "development" {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
		return zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// Logger aliases zerolog.Logger so the rest of the tree depends on one
// logging surface instead of importing the third-party module everywhere.
type Logger = zerolog.Logger
