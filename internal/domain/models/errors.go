package models

import (
	"errors"
	"fmt"
)

// Error taxonomy. Transient conditions are recovered locally (reconnect,
// fallback); only exhaustion conditions are surfaced to callers.
var (
	// ErrConnectionExhausted means the reconnect attempt cap was reached and
	// the source is stopped until an explicit restart.
	ErrConnectionExhausted = errors.New("connection attempts exhausted")

	// ErrInsufficientData means the historical series is too short for the
	// requested forecast. Never silently defaulted.
	ErrInsufficientData = errors.New("insufficient historical data")

	// ErrModelUnavailable means a single model attempt failed (timeout,
	// non-zero exit, protocol violation). Triggers fallback, surfaced only
	// when the whole chain fails.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrAllModelsFailed means every model in the fallback chain failed and
	// no cached result was fresh enough to serve.
	ErrAllModelsFailed = errors.New("all forecast models failed")

	// ErrSourceUnknown means the named source has no registered manager.
	ErrSourceUnknown = errors.New("unknown source")
)

// ConnectionError wraps a transient stream error that triggers a reconnect.
type ConnectionError struct {
	Source Source
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MalformedMessageError marks an inbound frame that could not be normalized
// into a tick. Logged and dropped at the stream manager, never propagated.
type MalformedMessageError struct {
	Source Source
	Reason string
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("%s malformed message: %s", e.Source, e.Reason)
}

// Retryable reports whether the caller may meaningfully retry the same
// request later, as opposed to structural failures that need different
// parameters (for example more history or a shorter horizon).
func Retryable(err error) bool {
	return errors.Is(err, ErrAllModelsFailed) || errors.Is(err, ErrConnectionExhausted)
}
