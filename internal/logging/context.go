package logging

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// With stores a request-scoped logger on the context.
func With(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request-scoped logger, or the global zap logger.
func FromContext(ctx context.Context) *zap.Logger {
	return FromOr(ctx, zap.L())
}

// FromOr returns the context logger when available, otherwise fallback.
func FromOr(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}
