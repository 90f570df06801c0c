package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrOracleUnavailable marks a transport, auth or quota failure that
// survived retries and fallbacks. Callers treat it as fatal for the run.
var ErrOracleUnavailable = errors.New("oracle unavailable")

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Adapter   string
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		if e.Adapter != "" {
			return fmt.Sprintf("%s: %v", e.Adapter, e.Err)
		}
		return e.Err.Error()
	}
	return fmt.Sprintf("adapter error (status=%d)", e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Unavailable wraps err so that errors.Is(err, ErrOracleUnavailable) holds.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrOracleUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Temporary {
			return true
		}
		if adapterErr.Status == 408 || adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}
