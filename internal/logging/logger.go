package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// LevelFatal is the slog level of FATAL entries.
const LevelFatal = slog.LevelError + 4

func (l Level) slog() slog.Level {
	switch l {
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARN:
		return slog.LevelWarn
	case FATAL:
		return LevelFatal
	default:
		return slog.LevelError
	}
}

// replaceLevel prints LevelFatal as FATAL instead of ERROR+4.
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lv, ok := a.Value.Any().(slog.Level); ok && lv == LevelFatal {
			a.Value = slog.StringValue(FATAL.String())
		}
	}
	return a
}

// Options configures New.
type Options struct {
	Level Level
	JSON  bool
	// Output defaults to stderr; stdout belongs to the program being launched.
	Output io.Writer
	// File, when set, receives a copy of every entry (appended).
	File string
	// Journal additionally sends entries to the systemd journal.
	Journal bool
}

// Logger provides structured logging with optional file and journal fanout
type Logger struct {
	level      *slog.LevelVar
	jsonFormat bool
	output     io.Writer
	extra      []slog.Handler
	attrs      []any
	logFile    *os.File
	sl         *slog.Logger
}

// NewLogger creates a new logger writing to stderr
func NewLogger(level Level, jsonFormat bool) *Logger {
	l := &Logger{
		level:      new(slog.LevelVar),
		jsonFormat: jsonFormat,
		output:     os.Stderr,
	}
	l.level.Set(level.slog())
	l.build()
	return l
}

// New creates a logger from opts
func New(opts Options) (*Logger, error) {
	l := NewLogger(opts.Level, opts.JSON)
	if opts.Output != nil {
		l.output = opts.Output
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory for %s: %w", opts.File, err)
		}
		logFile, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", opts.File, err)
		}
		l.logFile = logFile
		l.extra = append(l.extra, l.newHandler(logFile))
	}

	var journalErr error
	if opts.Journal {
		journal, err := slogjournal.NewHandler(&slogjournal.Options{
			Level: l.level,
			ReplaceGroup: func(key string) string {
				return toJournalKey(key)
			},
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = toJournalKey(a.Key)
				return a
			},
		})
		if err != nil {
			journalErr = err
		} else {
			l.extra = append(l.extra, journal)
		}
	}

	l.build()
	if journalErr != nil {
		l.Warn("systemd journal unavailable", map[string]interface{}{"error": journalErr.Error()})
	}
	return l, nil
}

func (l *Logger) newHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: l.level, ReplaceAttr: replaceLevel}
	if l.jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (l *Logger) build() {
	handlers := append([]slog.Handler{l.newHandler(l.output)}, l.extra...)
	l.sl = slog.New(slogmulti.Fanout(handlers...)).With(l.attrs...)
}

// SetOutput sets the primary output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.build()
}

// SetLevel changes the minimum level of l and every logger derived from it
func (l *Logger) SetLevel(level Level) {
	l.level.Set(level.slog())
}

// log writes a log entry
func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	lv := level.slog()
	if !l.sl.Enabled(context.Background(), lv) {
		if level == FATAL {
			os.Exit(1)
		}
		return
	}

	var args []any
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			args = append(args, slog.Any(k, fields[k]))
		}
	}
	l.sl.Log(context.Background(), lv, message, args...)

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, first(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, first(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, first(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, first(fields))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, first(fields))
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	attrs := make([]any, 0, len(l.attrs)+1)
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, slog.Any(key, value))

	derived := &Logger{
		level:      l.level,
		jsonFormat: l.jsonFormat,
		output:     l.output,
		extra:      l.extra,
		attrs:      attrs,
	}
	derived.build()
	return derived
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.logFile != nil {
		return l.logFile.Close()
	}
	return nil
}

func toJournalKey(str string) string {
	str = strings.ToUpper(str)
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, str)
}

var std = NewLogger(INFO, false)

// Default returns the process-wide logger used when none is injected
func Default() *Logger { return std }
