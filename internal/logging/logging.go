package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
	Off
)

// LevelIds maps levels to their command line names.
var LevelIds = map[Level][]string{
	Trace: {"trace"},
	Debug: {"debug"},
	Info:  {"info"},
	Warn:  {"warn", "warning"},
	Error: {"error"},
}

func (l Level) String() string {
	if ids, ok := LevelIds[l]; ok {
		return ids[0]
	}
	if l == Off {
		return "off"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Trace:
		return zerolog.TraceLevel
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var FormatIds = map[Format][]string{
	FormatText: {"text"},
	FormatJSON: {"json"},
}

type Config struct {
	Level  Level
	Format Format
}

// Logger is the logging sink handed to every component that reports
// progress or diagnostics. Its level is fixed at construction; use
// WithLevel to derive a logger with a different verbosity.
type Logger struct {
	log zerolog.Logger
}

// NewLogger returns a logger writing to stderr.
func NewLogger(cfg Config) *Logger {
	return New(os.Stderr, cfg)
}

func New(w io.Writer, cfg Config) *Logger {
	if cfg.Format == FormatText {
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !term.IsTerminal(int(f.Fd()))
		}
		w = zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    noColor,
			TimeFormat: time.TimeOnly,
		}
	}

	return &Logger{log: zerolog.New(w).Level(cfg.Level.zerolog()).With().Timestamp().Logger()}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{log: zerolog.Nop()}
}

// WithLevel returns a child logger sharing the same output at the given level.
func (l *Logger) WithLevel(level Level) *Logger {
	return &Logger{log: l.log.Level(level.zerolog())}
}

// With returns a child logger that tags every entry with the given field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{log: l.log.With().Str(key, value).Logger()}
}

// Zerolog exposes the underlying logger for adapters (SQL logging).
func (l *Logger) Zerolog() zerolog.Logger {
	return l.log
}

func (l *Logger) Enabled(level Level) bool {
	return l.log.GetLevel() <= level.zerolog() && level != Off
}

func (l *Logger) Tracef(format string, args ...any) {
	l.log.Trace().Msgf(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

// ParseLevel accepts the command line names in LevelIds, case insensitive.
func ParseLevel(s string) (Level, error) {
	for l, ids := range LevelIds {
		for _, id := range ids {
			if strings.EqualFold(id, s) {
				return l, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
