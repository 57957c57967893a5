// SPDX-License-Identifier: MIT

// Package log is the leveled logger used across specview. It keeps the
// familiar Debugf/Infof/Warnf/Errorf surface on top of zerolog.
//
// Components receive an explicit *Logger tagged with their name; the
// package-level functions write through a default logger for code that has
// no component of its own (main, cmd).
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false // Default to Info on parse error
	}
}

var currentLevel atomic.Uint32

// SetLevel sets the process-wide logging level.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
	zerolog.SetGlobalLevel(level.zerolog())
}

// GetLevel returns the process-wide logging level.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// Logger writes leveled messages tagged with a component name.
type Logger struct {
	zl zerolog.Logger
}

// New returns a Logger writing human-readable lines to w.
func New(w io.Writer, component string) *Logger {
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "2006/01/02 15:04:05.000000", NoColor: true}
	zl := zerolog.New(out).With().Timestamp().Logger()
	if component != "" {
		zl = zl.With().Str("component", component).Logger()
	}
	return &Logger{zl: zl}
}

// NewJSON returns a Logger writing one JSON object per line to w.
func NewJSON(w io.Writer, component string) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	if component != "" {
		zl = zl.With().Str("component", component).Logger()
	}
	return &Logger{zl: zl}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger tagged with component.
func (l *Logger) With(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, v ...any) {
	l.zl.Debug().Msgf(format, v...)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, v ...any) {
	l.zl.Info().Msgf(format, v...)
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, v ...any) {
	l.zl.Warn().Msgf(format, v...)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, v ...any) {
	l.zl.Error().Msgf(format, v...)
}

// Fatalf logs a formatted message and exits the process.
func (l *Logger) Fatalf(format string, v ...any) {
	l.zl.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	SetDefault(New(os.Stderr, ""))
	// Default level at startup. Can be overridden by config.
	SetLevel(LevelInfo)
}

// Default returns the logger behind the package-level functions.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the logger behind the package-level functions.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Debugf logs a formatted debug message on the default logger.
func Debugf(format string, v ...any) {
	Default().Debugf(format, v...)
}

// Infof logs a formatted info message on the default logger.
func Infof(format string, v ...any) {
	Default().Infof(format, v...)
}

// Warnf logs a formatted warning message on the default logger.
func Warnf(format string, v ...any) {
	Default().Warnf(format, v...)
}

// Errorf logs a formatted error message on the default logger.
func Errorf(format string, v ...any) {
	Default().Errorf(format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...any) {
	Default().Fatalf(format, v...)
}

// Info logs an info message on the default logger.
func Info(v ...any) {
	Default().Infof("%s", fmt.Sprint(v...))
}

// Error logs an error message on the default logger.
func Error(v ...any) {
	Default().Errorf("%s", fmt.Sprint(v...))
}
