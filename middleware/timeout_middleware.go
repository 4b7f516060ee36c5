package middleware

import (
	"context"
	"time"

	"pbtcp/message"
)

// Timeout fails a call with a Timeout failure once it has run for longer
// than timeout. The handler's context is cancelled at that point; the call
// itself keeps running until it returns on its own.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) *message.Result {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Result, 1)
			go func() {
				done <- next(ctx, inv)
			}()

			select {
			case result := <-done:
				return result
			case <-ctx.Done():
				return message.Failedf(message.TimeoutType, "%s did not complete within %s", inv.Method, timeout)
			}
		}
	}
}
