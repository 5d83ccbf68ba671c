// Package middleware implements the onion-model handler chain for
// Fast servers: Logging and Timeout wrap a server.Handler to add
// cross-cutting concerns without changing the handler itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// A middleware can short-circuit by returning without calling next —
// server.RateLimit does this directly rather than through Chain, since
// it needs no composition with other middleware to be useful on its
// own.
package middleware

import (
	"github.com/TritonDataCenter/rust-fast/server"
)

// Middleware wraps a server.Handler with another server.Handler.
type Middleware func(next server.Handler) server.Handler

// Chain composes middlewares into one, applying them so the first
// middleware in the list is the outermost layer: executed first on
// the way in, last on the way out.
func Chain(middlewares ...Middleware) Middleware {
	return func(next server.Handler) server.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
