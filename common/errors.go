package common

import (
	"errors"
	"fmt"
)

// Common error constants
var (
	// ErrUnsupportedState is returned when a state code has no automatable portal definition
	ErrUnsupportedState = errors.New("unsupported state portal")

	// ErrBlocked is returned when a portal served a bot challenge instead of results
	ErrBlocked = errors.New("blocked by bot challenge")

	// ErrAlreadySearched is returned when a user repeats the one-shot onboarding search
	ErrAlreadySearched = errors.New("initial search already completed")

	// ErrQuotaExceeded is returned when a free-tier user requests more states than allowed
	ErrQuotaExceeded = errors.New("state quota exceeded")

	// ErrInvalidState is returned when a request names a state code that does not exist
	ErrInvalidState = errors.New("invalid state code")
)

// FetchError is a transient render-service failure. It is retried with
// backoff up to a cap; any other failure propagates immediately.
type FetchError struct {
	StateCode string
	Status    int
	Err       error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.StateCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: render service returned %d", e.StateCode, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
// HTTP 429 and 5xx are rate-limit or upstream hiccups; network errors
// carry no status at all.
func (e *FetchError) Retryable() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}

// MisalignmentError reports that independently extracted field lists
// disagreed in length and records were truncated to the shortest list.
// It is a data-quality warning, not a failure: the truncated claims are
// still returned alongside it.
type MisalignmentError struct {
	StateCode string
	Shortest  int
	Longest   int
}

func (e *MisalignmentError) Error() string {
	return fmt.Sprintf("parse %s: field lists misaligned (%d..%d), truncated to %d records",
		e.StateCode, e.Shortest, e.Longest, e.Shortest)
}
