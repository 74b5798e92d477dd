// Package logr provides the logger used throughout counters.
package logr

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
)

const (
	DefaultFormat Format = "default"
	TextFormat    Format = "text"
	JSONFormat    Format = "json"
)

var formats = []Format{DefaultFormat, TextFormat, JSONFormat}

type (
	// Logger wraps the upstream logr logger, so that its methods return this
	// package's type.
	Logger struct {
		logr.Logger
	}

	Config struct {
		// Verbosity is the logr V-level below which messages are logged.
		Verbosity int
		Format    Format
		// Output is where logs are written. Defaults to stderr.
		Output io.Writer
	}

	// Format is the format of log records. It is a pflag.Value, so an
	// unrecognised format is rejected when flags are parsed.
	Format string
)

func (f *Format) String() string { return string(*f) }
func (f *Format) Type() string   { return "format" }

func (f *Format) Set(v string) error {
	if !slices.Contains(formats, Format(v)) {
		return fmt.Errorf("unrecognised logging format: %s: must be one of %v", v, formats)
	}
	*f = Format(v)
	return nil
}

// RegisterFlags adds flags to the given flagset, and, after the flagset is
// parsed by the caller, the flags populate the logger config.
func (cfg *Config) RegisterFlags(flags *pflag.FlagSet) {
	cfg.Format = DefaultFormat

	flags.IntVarP(&cfg.Verbosity, "v", "v", 0, "Logging level")
	flags.Var(&cfg.Format, "log-format", "Logging format: default, text or json")
}

// New constructs a logger from the config.
func New(cfg Config) (Logger, error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       slog.Level(-cfg.Verbosity),
		ReplaceAttr: replaceLevel,
	}

	var h slog.Handler
	switch cfg.Format {
	case DefaultFormat, "":
		// slog's default handler writes through the standard logger, so
		// only the level can be applied.
		h = NewLevelHandler(opts.Level, slog.Default().Handler())
	case TextFormat:
		h = slog.NewTextHandler(out, opts)
	case JSONFormat:
		h = slog.NewJSONHandler(out, opts)
	default:
		return Logger{}, fmt.Errorf("unrecognised logging format: %s", cfg.Format)
	}
	return Logger{Logger: logr.FromSlogHandler(h)}, nil
}

func Discard() Logger { return Logger{Logger: logr.Discard()} }

// WithValues returns a new Logger instance with additional key/value pairs.
func (l Logger) WithValues(keysAndValues ...any) Logger {
	return Logger{Logger: l.Logger.WithValues(keysAndValues...)}
}

func (l Logger) V(level int) Logger {
	return Logger{Logger: l.Logger.V(level)}
}
