// Package logger is a thin structured logging layer over zap.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const messageKey = "message"

// Level is the minimum severity written.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zap() zapcore.Level {
	switch Level(strings.ToLower(string(l))) {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config selects the encoder and level.
type Config struct {
	Level       Level
	Development bool
	OutputPaths []string
}

// Field is one key/value pair attached to an entry.
type Field struct {
	Key   string
	Value any
}

func NewField(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger wraps a *zap.Logger.
type Logger struct {
	z *zap.Logger
}

// New builds a JSON production logger, or a console logger when
// cfg.Development is set.
func New(cfg Config) (*Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.Level.zap())
	zc.EncoderConfig.MessageKey = messageKey
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}

	z, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{z: z}, nil
}

// FromZap adopts an existing zap logger, e.g. one from zaptest.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func (l *Logger) Zap() *zap.Logger { return l.z }

func (l *Logger) Sync() error { return l.z.Sync() }

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, convert(fields)...) }

func (l *Logger) Info(msg string, fields ...Field) { l.z.Info(msg, convert(fields)...) }

func (l *Logger) Warn(msg string, fields ...Field) { l.z.Warn(msg, convert(fields)...) }

// Error logs err at error level. When err carries a pkg/errors stack trace it
// replaces the logger's own call stack.
func (l *Logger) Error(err error, fields ...Field) {
	ce := l.z.Check(zapcore.ErrorLevel, err.Error())
	if ce == nil {
		return
	}
	if st := stackOf(err); st != "" {
		ce.Stack = st
	}
	ce.Write(convert(fields)...)
}

// With returns a child logger that always carries fields.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.z.With(convert(fields)...)}
}

func convert(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
