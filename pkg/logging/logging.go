// Package logging sets up the diagnostic logger. The execution log of a run is
// written by runlog; this logger carries the tool's own messages to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv overrides the configured level when set.
const LevelEnv = "APDUSCRIPT_LOG_LEVEL"

// DefaultLevel is used when neither the config nor the environment names a level.
const DefaultLevel = zerolog.WarnLevel

// Init installs a console logger on stderr as the global logger.
func Init(app, level string) (zerolog.Logger, error) {
	return InitWriter(os.Stderr, app, level)
}

// InitWriter is Init with an explicit output.
func InitWriter(out io.Writer, app, level string) (zerolog.Logger, error) {
	if env := strings.TrimSpace(os.Getenv(LevelEnv)); env != "" {
		level = env
	}

	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(lvl).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger, nil
}

// ParseLevel accepts the zerolog level names; "" selects DefaultLevel.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return DefaultLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}
