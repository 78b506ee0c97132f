package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrTransport matches every *TransportError.
var ErrTransport = errors.New("label service call failed")

// TransportError reports that a label service call did not produce a reply:
// network failure, timeout, authentication or rate limiting.
type TransportError struct {
	Provider    string
	StatusCode  int // 0 when no HTTP response was received
	RateLimited bool
	RetryAfter  time.Duration
	Err         error
}

func (e *TransportError) Error() string {
	switch {
	case e.RateLimited:
		return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
}

// Is reports a match against ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a *TransportError and returns it.
func IsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// newStatusError builds a TransportError from an HTTP status code.
func newStatusError(provider string, status int, retryAfter time.Duration, err error) *TransportError {
	return &TransportError{
		Provider:    provider,
		StatusCode:  status,
		RateLimited: status == http.StatusTooManyRequests,
		RetryAfter:  retryAfter,
		Err:         err,
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
