// Package analysis produces AI-derived sentiment records for collected videos.
package analysis

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable indicates the reasoning service could not be
// reached or returned a transient server error. Retryable: the video stays
// unanalyzed and is picked up by the next batch run.
var ErrProviderUnavailable = errors.New("analysis provider unavailable")

// ErrQuotaExceeded indicates the provider rejected the request for quota
// reasons. It halts the remainder of the current batch; already-processed
// videos keep their results.
var ErrQuotaExceeded = errors.New("analysis quota exceeded")

// MalformedResponseError indicates the model's output did not parse against
// the expected schema or violated the score/label mapping. Retried a small
// fixed number of times, then recorded as a terminal per-item failure that
// does not block other items.
type MalformedResponseError struct {
	Reason string
	Raw    string
	Cause  error
}

func (e *MalformedResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed analysis response: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed analysis response: %s", e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}
