package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("slot_overlapped")
	ErrState      = errors.New("illegal state transition")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Statef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// GatewayError is returned by payment gateway adapters. Retryable marks
// transient failures (network, timeout, 5xx).
type GatewayError struct {
	Provider  Provider
	Op        string
	Retryable bool
	Reason    string
	Err       error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("gateway %s %s: %s", e.Provider, e.Op, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// AuthenticityError means an inbound webhook could not be proven to come from the provider.
type AuthenticityError struct {
	Provider Provider
	Reason   string
	Err      error
}

func (e *AuthenticityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook from %s not authentic: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("webhook from %s not authentic: %s", e.Provider, e.Reason)
}

func (e *AuthenticityError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Retryable
}
