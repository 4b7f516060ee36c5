package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"pbtcp/message"
)

// RateLimit admits r calls per second with bursts of up to burst calls,
// server wide. Calls over the limit fail with RateLimitExceeded.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			if !limiter.Allow() {
				return message.Failedf(message.RateLimitType, "rate limit exceeded calling %s", inv.Method)
			}
			return next(ctx, inv)
		}
	}
}
