// Package observability carries request-scoped logging state through context.
package observability

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

type requestIDKey struct{}

// ContextWithLogger attaches lg to ctx. A nil logger leaves ctx unchanged.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, lg)
}

// LoggerFromContext returns the request logger, falling back to slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if lg, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && lg != nil {
		return lg
	}
	return slog.Default()
}

// WithLogAttrs returns a context whose logger carries the extra attributes,
// so deeper layers log with the same fields.
func WithLogAttrs(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	return ContextWithLogger(ctx, LoggerFromContext(ctx).With(args...))
}

// ContextWithRequestID stores a non-empty request id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}
