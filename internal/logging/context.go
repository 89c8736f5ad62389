package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
)

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithNewRequestID returns a context carrying a freshly generated
// request ID. Used for work that originates inside the process, such as
// background audit delivery.
func ContextWithNewRequestID(ctx context.Context) context.Context {
	return ContextWithRequestID(ctx, uuid.New().String())
}

// RequestIDFromContext extracts the request ID from the context, or ""
// when none is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger that includes the context's request ID as a field
// when one is present. Use for request-scoped log lines:
//
//	logging.Ctx(ctx).Info().Str("fingerprint", fp.String()).Msg("Cache hit")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if id := RequestIDFromContext(ctx); id != "" {
		l = l.With().Str("request_id", id).Logger()
	}
	return &l
}
