// Package inference defines the error taxonomy shared by the
// transcription and diarization capabilities. Both failure modes are
// recovered locally by the coordinator and never terminate the stream.
package inference

import (
	"context"
	"errors"
)

var (
	// ErrTimeout marks a capability call that exceeded its per-chunk budget.
	ErrTimeout = errors.New("inference timed out")

	// ErrInference marks a capability call that failed outright.
	ErrInference = errors.New("inference failed")
)

// Classify maps a capability error onto the taxonomy. Context deadline
// errors from the per-call budget count as timeouts.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return ErrInference
	}
}

// ErrorType returns the metrics label for an error.
func ErrorType(err error) string {
	switch Classify(err) {
	case nil:
		return "none"
	case ErrTimeout:
		return "timeout"
	default:
		return "inference"
	}
}
