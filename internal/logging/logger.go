package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents different logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLevel reads ERROR, WARN, INFO, DEBUG or TRACE; anything else is INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LogLevelError
	case "WARN":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelError:
		return zap.ErrorLevel
	case LogLevelWarn:
		return zap.WarnLevel
	case LogLevelInfo:
		return zap.InfoLevel
	default:
		return zap.DebugLevel
	}
}

// Logger provides leveled key/value logging
type Logger struct {
	level LogLevel
	sugar *zap.SugaredLogger
}

// New builds a logger. mode "prod" writes JSON, anything else the console format.
func New(level LogLevel, mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{level: level, sugar: z.Sugar()}, nil
}

// NewDefaultLogger creates a logger based on the LOG_LEVEL and LOG_MODE environment variables
func NewDefaultLogger() *Logger {
	l, err := New(ParseLevel(os.Getenv("LOG_LEVEL")), os.Getenv("LOG_MODE"))
	if err != nil {
		return Nop()
	}
	return l
}

// Nop discards everything
func Nop() *Logger {
	return &Logger{level: LogLevelError, sugar: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, e.g. one built by zaptest
func FromZap(z *zap.Logger, level LogLevel) *Logger {
	return &Logger{level: level, sugar: z.Sugar()}
}

func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Trace logs below debug; zap has no trace level so it is gated here
func (l *Logger) Trace(msg string, keysAndValues ...any) {
	if l.level >= LogLevelTrace {
		l.sugar.Debugw(msg, append([]any{"trace", true}, keysAndValues...)...)
	}
}

// With returns a child logger carrying the given fields
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{level: l.level, sugar: l.sugar.With(keysAndValues...)}
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
