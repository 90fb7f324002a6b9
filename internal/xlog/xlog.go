// Package xlog is the thin structured-logging seam the core calls into on
// connection lifecycle events: the client logs each established transport
// with its ALPN result and each open/dial failure; the server logs
// handshake, parse and write failures. It wraps go.uber.org/zap rather than reaching for the
// stdlib log package, matching the structured-logging idiom yandex-pandora
// uses throughout its pack.
package xlog

import "go.uber.org/zap"

// Logger is held by Client and Server; a nil *Logger behaves as a silent
// no-op logger without a nil check at every call site.
type Logger struct {
	z *zap.Logger
}

// Nop returns a Logger that discards everything, the default when a Client
// is constructed without an explicit logger.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// New wraps an existing zap.Logger, e.g. one the caller built with
// zap.NewProduction().
func New(z *zap.Logger) *Logger {
	if z == nil {
		return Nop()
	}
	return &Logger{z: z}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	if l != nil {
		l.z.Debug(msg, fields...)
	}
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	if l != nil {
		l.z.Info(msg, fields...)
	}
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	if l != nil {
		l.z.Warn(msg, fields...)
	}
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	if l != nil {
		l.z.Error(msg, fields...)
	}
}
