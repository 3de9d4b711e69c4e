// Package logging wraps a zap sugared logger behind a small global API
// shared by the template engine, the generator and the CLI.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the verbosity of a Logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

// String returns the level name accepted by ParseLevel.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelOff:
		return "off"
	default:
		return "unknown"
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
	case LevelOff:
		// above fatal, nothing is enabled
		return zapcore.FatalLevel + 1
	default:
		return zapcore.InfoLevel
	}
}

// ParseLevel maps a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "off", "none":
		return LevelOff, nil
	default:
		return LevelInfo, errors.Newf("invalid log level %q (use debug, info, warn, error or off)", s)
	}
}

// Fields are structured key/value pairs attached to log lines.
type Fields map[string]interface{}

// Logger is a leveled structured logger. Loggers derived with WithField
// share the level of their parent.
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewLogger builds a console logger writing to w.
func NewLogger(w io.Writer, level Level) *Logger {
	if w == nil {
		w = io.Discard
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	atom := zap.NewAtomicLevelAt(level.zapLevel())
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), atom)

	return &Logger{
		sugar: zap.New(core).Sugar(),
		level: atom,
	}
}

// NewNop returns a logger that drops everything.
func NewNop() *Logger {
	return &Logger{
		sugar: zap.NewNop().Sugar(),
		level: zap.NewAtomicLevelAt(LevelOff.zapLevel()),
	}
}

// SetLevel changes the level of l and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// IsDebugMode reports whether debug lines are written. Callers check it
// before building expensive fields.
func (l *Logger) IsDebugMode() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

// WithField returns a logger that adds key=value to every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(key, value), level: l.level}
}

// WithFields returns a logger that adds all of fields to every line.
func (l *Logger) WithFields(fields Fields) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{sugar: l.sugar.With(args...), level: l.level}
}

// Sugar exposes the underlying zap logger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Debug logs a printf-style message at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs a printf-style message at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a printf-style message at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs a printf-style message at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewLogger(os.Stderr, LevelInfo)
)

// GetLogger returns the process-wide logger.
func GetLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetLogger replaces the process-wide logger.
func SetLogger(logger *Logger) {
	if logger == nil {
		logger = NewNop()
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// SetLevel parses name and applies it to the process-wide logger.
func SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	GetLogger().SetLevel(level)
	return nil
}

// Debug, Info, Warn and Error log through the process-wide logger.

func Debug(format string, args ...interface{}) { GetLogger().Debug(format, args...) }
func Info(format string, args ...interface{})  { GetLogger().Info(format, args...) }
func Warn(format string, args ...interface{})  { GetLogger().Warn(format, args...) }
func Error(format string, args ...interface{}) { GetLogger().Error(format, args...) }

// WithField derives a logger from the process-wide logger.
func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

// WithFields derives a logger from the process-wide logger.
func WithFields(fields Fields) *Logger {
	return GetLogger().WithFields(fields)
}
