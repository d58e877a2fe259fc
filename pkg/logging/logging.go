// Package logging is a thin zap wrapper that stamps request ids carried in a
// context onto every entry.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	logger *zap.Logger
}

type LogLevel zapcore.Level

const (
	DEBUG = LogLevel(zapcore.DebugLevel)
	INFO  = LogLevel(zapcore.InfoLevel)
	WARN  = LogLevel(zapcore.WarnLevel)
	ERROR = LogLevel(zapcore.ErrorLevel)
	FATAL = LogLevel(zapcore.FatalLevel)
)

type ctxKey struct{}

// NewLogger builds a JSON logger on stderr with ISO8601 timestamps. Set
// LOG_ENCODING=console for human readable output.
func NewLogger(level LogLevel) *Logger {
	cfg := zap.NewProductionConfig()
	if os.Getenv("LOG_ENCODING") == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return NewNop()
	}
	return &Logger{logger: zl}
}

func NewNop() *Logger {
	return &Logger{logger: zap.NewNop()}
}

// ParseLevel maps a config string to a LogLevel, defaulting to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	}
	return INFO
}

// ReplaceGlobals installs l as zap's global logger so package level zap.S()
// calls share its level and encoding. The returned func restores the previous
// globals.
func (l *Logger) ReplaceGlobals() func() {
	return zap.ReplaceGlobals(l.logger)
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{logger: l.logger.With(fields...)}
}

func (l *Logger) Zap() *zap.Logger {
	return l.logger
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// NewRequestID tags ctx with a fresh random request id.
func NewRequestID(ctx context.Context) context.Context {
	return WithRequestID(ctx, uuid.NewString())
}

func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

func (l *Logger) write(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	ce := l.logger.Check(level, msg)
	if ce == nil {
		return
	}
	if id, ok := RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	ce.Write(fields...)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.ErrorLevel, msg, fields)
}

// Fatal logs then exits the process.
func (l *Logger) Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	l.write(ctx, zapcore.FatalLevel, msg, fields)
}

func (l *Logger) Sync() error {
	return l.logger.Sync()
}
