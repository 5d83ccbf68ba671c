// Package logging defines the structured logger contract the server
// engine accepts and passes to its handlers (and so to the middleware
// package) — key/value records at levels debug, info, and error — and
// a zap-backed implementation. The client, transport, and registry
// packages do not take a Logger.
//
// zap is promoted to a direct dependency rather than pulled in only
// transitively through the etcd client, and a no-op logger is used as
// the default when the caller doesn't supply one.
package logging

import "go.uber.org/zap"

// Logger is the structured logging contract consumed by the server
// engine and its handlers. Implementations must be safe for concurrent
// use, since a single Logger is commonly shared across every
// connection a process handles.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// New wraps a *zap.SugaredLogger as a Logger.
func New(z *zap.SugaredLogger) Logger {
	return &zapLogger{z}
}

type zapLogger struct {
	z *zap.SugaredLogger
}

func (l *zapLogger) Debugw(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l *zapLogger) Infow(msg string, kv ...interface{})  { l.z.Infow(msg, kv...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{}) { l.z.Errorw(msg, kv...) }

// NoOp returns a Logger that discards every record. Used whenever a
// caller passes a nil Logger to a constructor that requires one.
func NoOp() Logger {
	return noop{}
}

type noop struct{}

func (noop) Debugw(string, ...interface{}) {}
func (noop) Infow(string, ...interface{})  {}
func (noop) Errorw(string, ...interface{}) {}

// OrNoOp returns l if non-nil, otherwise a Logger that discards every
// record.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOp()
	}
	return l
}
