// Package middleware wraps the server's dispatch handler.
//
// A middleware sees every parsed invocation before the method resolver does,
// and the result on its way back. Chain(A, B, C)(h) runs as
// A.before → B.before → C.before → h → C.after → B.after → A.after.
package middleware

import (
	"context"

	"pbtcp/message"
)

// HandlerFunc serves one invocation. It never returns nil.
type HandlerFunc func(ctx context.Context, inv *message.Invocation) *message.Result

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, the first being the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
