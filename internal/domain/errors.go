package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicate is returned by stores when a unique key already exists.
var ErrDuplicate = errors.New("duplicate record")

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %d seconds", e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds up so clients never retry early.
func (e *RateLimitError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second > 0 {
		secs++
	}
	return secs
}

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

type ExpiredError struct {
	Resource string
}

func (e *ExpiredError) Error() string {
	return e.Resource + " has expired"
}

type AlreadyUsedError struct {
	Resource string
}

func (e *AlreadyUsedError) Error() string {
	return e.Resource + " has already been used"
}

// ProviderError wraps an SMS dispatch failure. It is recorded in the SMS log and
// reported as an unsuccessful send rather than aborting the caller.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sms provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MismatchError reports a wrong OTP code.
type MismatchError struct{}

func (e *MismatchError) Error() string {
	return "verification code is incorrect"
}
