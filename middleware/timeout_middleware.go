package middleware

import (
	"context"
	"time"

	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/logging"
	"github.com/TritonDataCenter/rust-fast/message"
	"github.com/TritonDataCenter/rust-fast/server"
)

// Timeout bounds how long the engine waits for next to complete. The
// handler goroutine is not cancelled when the timeout fires — it keeps
// running in the background — this only controls how long the caller
// waits for it; a handler that wants real cancellation must select on
// ctx.Done() itself.
func Timeout(d time.Duration) Middleware {
	return func(next server.Handler) server.Handler {
		return func(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type outcome struct {
				results []*message.Message
				err     error
			}
			done := make(chan outcome, 1)
			go func() {
				results, err := next(ctx, req, log)
				done <- outcome{results, err}
			}()

			select {
			case o := <-done:
				return o.results, o.err
			case <-ctx.Done():
				return nil, &ferrors.HandlerError{Err: &ferrors.RemoteError{Name: "Timeout", Message: "request timed out"}}
			}
		}
	}
}
