// Package logx builds the bot's zerolog logger: a readable console writer
// and an optional JSON file sink.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config selects the level and sinks
type Config struct {
	Level   string
	Console bool
	File    string
}

// New builds the root logger. The returned closer releases the log file,
// if one was opened.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	writers := make([]io.Writer, 0, 2)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	var closer io.Closer = nopCloser{}
	if path := strings.TrimSpace(cfg.File); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("opening log file %q: %w", path, err)
		}
		closer = f
		writers = append(writers, zerolog.SyncWriter(f))
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	return NewWith(zerolog.MultiLevelWriter(writers...), cfg.Level), closer, nil
}

// NewWith builds a logger writing to w
func NewWith(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
}

// NewConsole creates a standalone console logger, used before the config
// has been read
func NewConsole(level string) zerolog.Logger {
	return NewWith(newConsoleWriter(os.Stderr), level)
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

// ParseLevel maps a config string to a level, returning def when unknown
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
