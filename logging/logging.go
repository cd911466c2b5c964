// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// Config selects level, format and destination of log output.
type Config struct {
	Level  string `env:"LOG_LEVEL,default:info"`
	Format string `env:"LOG_FORMAT,default:text"` // text or json
	Output string `env:"LOG_OUTPUT,default:stdout"`
}

// New returns a logger writing to the configured output. Text output uses tint
// and colours only when writing to a terminal.
func New(cfg Config) (*slog.Logger, error) {
	var writer io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", cfg.Output, err)
		}
		writer = file
	}
	return NewWithWriter(cfg, writer), nil
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg Config, writer io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(tint.NewHandler(writer, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(writer),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" && a.Value.Kind() == slog.KindAny {
				if err, ok := a.Value.Any().(error); ok {
					return tint.Err(err)
				}
			}
			return a
		},
	}))
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
