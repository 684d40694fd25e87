// Package appctx carries small, explicitly-scoped request context values
// (correlation id, session id) through the call chain instead of making
// them ambient globals, mirroring the teacher's internal/common/appctx.
package appctx

import (
	"context"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// WithCorrelationID returns a context carrying the given correlation id,
// picked up by logger.Logger.WithContext.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, logger.CorrelationIDKey, id)
}

// WithSessionID returns a context carrying the given external session id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, logger.SessionIDKey, id)
}

// SessionID extracts the external session id from ctx, if present.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(logger.SessionIDKey).(string)
	return v, ok && v != ""
}
