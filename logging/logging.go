// Package logging builds the zerolog loggers used across the archive.
//
// Library packages never log through a global; they accept a
// zerolog.Logger option and default to zerolog.Nop(). Only cmd/archive
// builds a real logger, from the log.* configuration keys.
//
// Example usage:
//
//	log := logging.New(logging.Config{Level: "debug", Format: "console"})
//	archive := bundle.NewArchive(store, bundle.WithLogger(log))
//
// A log file is opened with Open, which hands the file back to be closed:
//
//	log, closer, err := logging.Open(logging.Config{Output: "archive.log"})
//	defer closer.Close()
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logger configuration options.
type Config struct {
	// Level is the minimum log level to output.
	Level string

	// Format is the output format (json, console, auto).
	Format string

	// Output is where to write logs: stderr, stdout, discard, or a file
	// path. File paths are only honoured by Open.
	Output string

	// NoColor disables color output in console mode.
	NoColor bool

	// Writer overrides Output when set.
	Writer io.Writer

	// Fields are default fields included in every entry.
	Fields map[string]string
}

// DefaultConfig returns info level, auto format, on stderr.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Format:  "auto",
		Output:  "stderr",
		NoColor: os.Getenv("NO_COLOR") != "",
	}
}

// New creates a logger from cfg. Unknown levels fall back to info. An
// Output naming a file writes to stderr instead; see Open.
func New(cfg Config) zerolog.Logger {
	out := cfg.Writer
	if out == nil {
		out = stream(cfg.Output)
	}
	return build(cfg, out)
}

// Open is New for configurations that may name a log file. The returned
// closer closes that file and is a no-op for streams.
func Open(cfg Config) (zerolog.Logger, io.Closer, error) {
	if cfg.Writer != nil || isStream(cfg.Output) {
		return New(cfg), nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("opening log file: %w", err)
	}
	return build(cfg, f), f, nil
}

func build(cfg Config, out io.Writer) zerolog.Logger {
	level := ParseLevel(cfg.Level)

	logger := zerolog.New(writer(cfg, out)).
		Level(level).
		With().
		Timestamp().
		Logger()

	if level <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}

	if len(cfg.Fields) > 0 {
		ctx := logger.With()
		for k, v := range cfg.Fields {
			ctx = ctx.Str(k, v)
		}
		logger = ctx.Logger()
	}
	return logger
}

// ParseLevel parses a level name. Empty and unknown names yield info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return zerolog.WarnLevel
	case "none", "off":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func writer(cfg Config, out io.Writer) io.Writer {
	format := strings.ToLower(cfg.Format)
	if format == "" || format == "auto" {
		format = "json"
		if isTerminal(out) {
			format = "console"
		}
	}

	switch format {
	case "console", "pretty":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: cfg.NoColor}
	default:
		return out
	}
}

func isStream(name string) bool {
	switch strings.ToLower(name) {
	case "", "stderr", "stdout", "discard", "none":
		return true
	}
	return false
}

func stream(name string) io.Writer {
	switch strings.ToLower(name) {
	case "stdout":
		return os.Stdout
	case "discard", "none":
		return io.Discard
	default:
		return os.Stderr
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
