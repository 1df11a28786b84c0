// Package logger owns the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultOutput = "candlebot.log"

type Config struct {
	Level  string `toml:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `toml:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	// Output is stderr, stdout or a file path.
	Output string `toml:"output" yaml:"output"`
}

var Log = zerolog.Nop()

var closer io.Closer

// Init replaces Log according to cfg. Calling it again closes the previous
// log file.
func Init(cfg Config) error {
	lvl := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		lvl = parsed
	}

	var out io.Writer
	var c io.Closer
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		path := cfg.Output
		if path == "" {
			path = DefaultOutput
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return err
		}
		out, c = file, file
	}

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: c != nil}
	}

	Close()
	closer = c
	Log = zerolog.New(out).Level(lvl).With().Timestamp().Str("app", "candlebot").Logger()
	Log.Debug().Msg("Logger initialized.")
	return nil
}

// Component returns a child logger tagged with name.
func Component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

func Close() {
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
}
