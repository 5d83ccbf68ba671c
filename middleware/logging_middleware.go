package middleware

import (
	"context"
	"time"

	"github.com/TritonDataCenter/rust-fast/logging"
	"github.com/TritonDataCenter/rust-fast/message"
	"github.com/TritonDataCenter/rust-fast/server"
)

// Logging records the method name and call duration for every
// request, and the error if the handler failed. It uses the Logger
// passed down by the server engine rather than one captured at
// construction, so log output carries whatever fields that engine's
// logger was configured with.
func Logging() Middleware {
	return func(next server.Handler) server.Handler {
		return func(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error) {
			start := time.Now()
			results, err := next(ctx, req, log)
			fields := []interface{}{"method", req.Payload.M.Name, "duration", time.Since(start)}
			if err != nil {
				fields = append(fields, "error", err)
				log.Errorw("request failed", fields...)
			} else {
				log.Debugw("request completed", fields...)
			}
			return results, err
		}
	}
}
