// Package fastretry is an opt-in, caller-side retry helper. It is
// deliberately not part of the client or server engines: Fast leaves
// retry/resubmission policy to the caller, since only the caller knows
// whether its request is safe to resend (idempotent reads are; a
// payment submission usually isn't).
//
// Unlike a request-level retry wrapper built around a handler type,
// this operates on a plain func() error so it can wrap any blocking
// call, not just a server-style handler, and is restricted to
// transport-level failures so it never retries a call that the server
// actually answered with an ERROR frame.
package fastretry

import (
	"errors"
	"time"

	"github.com/TritonDataCenter/rust-fast/ferrors"
)

// Do calls fn, retrying up to maxRetries times with exponential
// backoff (baseDelay * 2^attempt) when fn fails with a transport-level
// error — a *ferrors.Transport or *ferrors.UnexpectedEOF. Any other
// error, notably *ferrors.RemoteError (the server answered with
// ERROR), is returned immediately without retrying.
func Do(maxRetries int, baseDelay time.Duration, fn func() error) error {
	err := fn()
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		time.Sleep(baseDelay * time.Duration(uint64(1)<<uint(attempt)))
		err = fn()
	}
	return err
}

func retryable(err error) bool {
	var transport *ferrors.Transport
	var eof *ferrors.UnexpectedEOF
	return errors.As(err, &transport) || errors.As(err, &eof)
}
