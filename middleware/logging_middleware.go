package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pbtcp/message"
)

// Logging logs every call with its duration, and the failure kind of calls
// that failed.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			start := time.Now()
			result := next(ctx, inv)

			fields := []zap.Field{
				zap.String("method", inv.Method),
				zap.Int("args", len(inv.Args)),
				zap.Duration("duration", time.Since(start)),
			}
			if result.Failure != nil {
				logger.Info("call failed", append(fields,
					zap.String("kind", result.Failure.Type),
					zap.String("error", result.Failure.Message))...)
				return result
			}
			logger.Debug("call served", fields...)
			return result
		}
	}
}
