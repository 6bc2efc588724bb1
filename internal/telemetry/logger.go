// Package telemetry carries the ambient logging/tracing/metrics stack
// consumed by every other component. The default implementations wrap
// go.uber.org/zap and go.opentelemetry.io/otel the way the teacher
// constructs its own loggers (logger.With(zap.String("component", ...))).
package telemetry

import "go.uber.org/zap"

// Field is a structured log field, modeled directly on zap.Field so the
// default Logger can pass them straight through without conversion.
type Field = zap.Field

// Logger is the OpLogger spec.md §1 keeps out of scope beyond an
// interface.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps a *zap.Logger as a Logger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLogger{l: l}
}

func (z *zapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, fields...) }
func (z *zapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, fields...) }
func (z *zapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, fields...) }
func (z *zapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, fields...) }

func (z *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{l: z.l.With(fields...)}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	return NewZapLogger(zap.NewNop())
}
