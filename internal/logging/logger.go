// Package logging provides leveled logging backed by zap.
//
// The Logger supports DEBUG, INFO, WARN, and ERROR levels.
// Messages below the configured level are silently discarded.
// Output is either human-readable console lines or JSON objects.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents a log level
type Level int

const (
	// LevelDebug is the debug log level
	LevelDebug Level = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warn log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

// Output formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(z zapcore.Level) Level {
	switch z {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInfo
	case zapcore.WarnLevel:
		return LevelWarn
	default:
		return LevelError
	}
}

// ParseLevel parses a log level string into a Level.
// Returns LevelInfo if the string is not recognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides leveled logging.
// Child loggers created with With share the parent's level.
type Logger struct {
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

// New creates a new console Logger with the specified level and output writer.
// If output is nil, os.Stderr is used.
func New(level Level, output io.Writer) *Logger {
	return NewWithFormat(level, FormatConsole, output)
}

// NewWithFormat creates a Logger writing in the given format ("console" or
// "json"). Unknown formats fall back to console.
// If output is nil, os.Stderr is used.
func NewWithFormat(level Level, format string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}

	atom := zap.NewAtomicLevelAt(level.zapLevel())

	var encoder zapcore.Encoder
	if strings.ToLower(format) == FormatJSON {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.EncodeCaller = nil
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(output)), atom)

	return &Logger{
		level: atom,
		sugar: zap.New(core).Sugar(),
	}
}

// NewFromString creates a new Logger from a level string.
// If output is nil, os.Stderr is used.
func NewFromString(levelStr string, output io.Writer) *Logger {
	return New(ParseLevel(levelStr), output)
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{
		level: zap.NewAtomicLevelAt(zapcore.ErrorLevel),
		sugar: zap.NewNop().Sugar(),
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// With returns a child logger that attaches the given key/value pairs to
// every entry. Keys must be strings.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		level: l.level,
		sugar: l.sugar.With(keysAndValues...),
	}
}

// SetLevel changes the logger's level
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// GetLevel returns the logger's current level
func (l *Logger) GetLevel() Level {
	return fromZapLevel(l.level.Level())
}

// Sync flushes any buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
