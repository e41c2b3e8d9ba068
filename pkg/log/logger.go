package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

// Log levels, ordered from least to most severe.
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Entry is a single log record handed to a Formatter.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Fields    []Field
}

// Logger is the logging interface used throughout the service.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// With returns a child logger with the given fields bound to every entry.
	With(fields ...Field) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Option configures a logger created by NewLogger.
type Option func(*baseLogger)

// WithLevel sets the minimum level of emitted entries.
func WithLevel(level Level) Option {
	return func(l *baseLogger) { l.state.level = level }
}

// WithFormatter sets the entry formatter.
func WithFormatter(f Formatter) Option {
	return func(l *baseLogger) { l.state.formatter = f }
}

// WithOutput sets the output destination.
func WithOutput(o Output) Option {
	return func(l *baseLogger) { l.state.output = o }
}

// loggerState is shared between a logger and its With children so that
// SetLevel on any of them takes effect process-wide.
type loggerState struct {
	mu        sync.Mutex
	level     Level
	formatter Formatter
	output    Output
}

type baseLogger struct {
	state  *loggerState
	fields []Field
}

// NewLogger returns a Logger writing text entries to stderr at InfoLevel,
// unless overridden by options.
func NewLogger(options ...Option) Logger {
	l := &baseLogger{state: &loggerState{
		level:     InfoLevel,
		formatter: &TextFormatter{},
		output:    NewConsoleOutput(),
	}}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Discard returns a logger that drops every entry. Intended for tests.
func Discard() Logger {
	return &baseLogger{state: &loggerState{level: FatalLevel + 1, formatter: &TextFormatter{}, output: discardOutput{}}}
}

func (l *baseLogger) log(level Level, msg string, fields []Field) {
	st := l.state
	st.mu.Lock()
	if level < st.level {
		st.mu.Unlock()
		return
	}
	entry := &Entry{Timestamp: time.Now(), Level: level, Message: msg}
	entry.Fields = make([]Field, 0, len(l.fields)+len(fields))
	entry.Fields = append(entry.Fields, l.fields...)
	entry.Fields = append(entry.Fields, fields...)
	b, err := st.formatter.Format(entry)
	if err == nil {
		_ = st.output.Write(b)
	}
	st.mu.Unlock()
}

func (l *baseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *baseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *baseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *baseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *baseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *baseLogger) With(fields ...Field) Logger {
	child := &baseLogger{state: l.state}
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return child
}

func (l *baseLogger) SetLevel(level Level) {
	l.state.mu.Lock()
	l.state.level = level
	l.state.mu.Unlock()
}

func (l *baseLogger) GetLevel() Level {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	return l.state.level
}

// Config carries the env-facing logging settings.
type Config struct {
	Level  string
	Format string
}

// ApplyConfig builds a logger from a Config, validating level and format.
func ApplyConfig(cfg *Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var f Formatter
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		f = &TextFormatter{}
	case "json":
		f = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewConsoleOutput())), nil
}
