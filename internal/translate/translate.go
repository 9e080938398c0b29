// Package translate turns buffered speaker turns into translated turns.
// Each turn costs exactly one provider call per attempt; failures are
// retried with backoff, and exhausted turns are emitted untranslated
// with a failure mark rather than dropped.
package translate

import (
	"context"
	"errors"
)

// Sentinel errors classifying provider failures. Rate limits and
// outages are retryable; anything else fails the attempt outright.
var (
	ErrUnavailable = errors.New("translation service unavailable")
	ErrRateLimited = errors.New("translation rate limited")
	ErrTranslation = errors.New("translation failed")
)

// Translator performs one translation call.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
	Name() string
}

// retryable reports whether the attempt is worth repeating.
func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
