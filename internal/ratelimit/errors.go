package ratelimit

import (
	"errors"
	"fmt"
)

// ErrRateLimitExceeded is matched by every rejection returned from Check.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError carries the cooldown a rejected caller should observe.
type ExceededError struct {
	Key               string
	RetryAfterSeconds int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("too many requests, retry in %d seconds", e.RetryAfterSeconds)
}

func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}
