package logger

import (
	"context"

	"go.uber.org/zap"
)

// ctxKey is unexported so only this package places loggers in a context.
type ctxKey struct{}

// ContextWithLogger returns a child context carrying the logger. The HTTP
// middleware uses it to hand request-scoped loggers down to services.
func ContextWithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger the context carries, or a no-op logger
// when none was attached, so callers never need a nil check.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
