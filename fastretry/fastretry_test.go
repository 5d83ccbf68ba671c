package fastretry

import (
	"errors"
	"testing"
	"time"

	"github.com/TritonDataCenter/rust-fast/ferrors"
)

func TestDoRetriesTransportErrorsUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &ferrors.Transport{Op: "write", Err: errors.New("reset")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := Do(2, time.Millisecond, func() error {
		calls++
		return &ferrors.Transport{Op: "write", Err: errors.New("reset")}
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if calls != 3 { // initial attempt + 2 retries
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestDoDoesNotRetryRemoteError(t *testing.T) {
	calls := 0
	err := Do(5, time.Millisecond, func() error {
		calls++
		return &ferrors.RemoteError{Name: "Boom", Message: "nope"}
	})
	if err == nil {
		t.Fatal("expected the remote error to surface")
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1 (no retry on RemoteError)", calls)
	}
}
