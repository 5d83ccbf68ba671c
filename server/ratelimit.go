package server

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/TritonDataCenter/rust-fast/ferrors"
	"github.com/TritonDataCenter/rust-fast/logging"
	"github.com/TritonDataCenter/rust-fast/message"
)

// RateLimit wraps next with a token-bucket limiter: tokens refill at r
// per second up to burst, each request consumes one, and a request
// arriving to an empty bucket is rejected without reaching next. The
// limiter is constructed once, outside the returned Handler, so the
// bucket state is shared across every request rather than reset per
// call.
func RateLimit(r float64, burst int, next Handler) Handler {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(ctx context.Context, req *message.Message, log logging.Logger) ([]*message.Message, error) {
		if !limiter.Allow() {
			return nil, &ferrors.HandlerError{Err: &ferrors.RemoteError{Name: "RateLimitExceeded", Message: "too many requests"}}
		}
		return next(ctx, req, log)
	}
}
