package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTransient marks fetch failures that are retried on the next tick.
	ErrTransient = errors.New("transient fetch failure")
	// ErrMalformed marks payloads missing required fields. It is also transient.
	ErrMalformed = fmt.Errorf("malformed payload: %w", ErrTransient)
	// ErrRelatedUnresolved marks a reply parent, quote or repost source that could not be fetched.
	ErrRelatedUnresolved = errors.New("related post unresolved")
	// ErrInvalidConfig marks a configuration block that cannot be started.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RateLimitError is returned when the upstream asks callers to back off until Reset.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.Reset.UTC().Format(time.RFC3339))
}

// Wait returns how long to back off from now, floored at zero.
func (e *RateLimitError) Wait(now time.Time) time.Duration {
	d := e.Reset.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// AsRateLimit unwraps err into a *RateLimitError when possible.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
