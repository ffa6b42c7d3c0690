// Package fulfillment holds the error taxonomy shared by the queue, the
// worker, and the HTTP boundary. Every failure crossing the queue carries a
// classification so the retry decision never has to parse error strings.
package fulfillment

import (
	"errors"
	"fmt"
)

// Sentinel errors for user-facing failures. These are handled locally and
// never retried.
var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrCustomerNotFound         = errors.New("customer not found")
	ErrCaptchaNotFound          = errors.New("captcha session not found")
	ErrCaptchaExpired           = errors.New("captcha session expired")
	ErrCaptchaAlreadySolved     = errors.New("captcha already solved")
	ErrCartEmpty                = errors.New("cart is empty")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
)

// Class tags an error for the queue's retry decision
type Class int

const (
	// ClassFatal failures must not be retried and dead-letter immediately
	ClassFatal Class = iota
	// ClassTransient failures are retried with backoff up to a ceiling
	ClassTransient
)

// ClassifiedError wraps a cause with a retry classification
type ClassifiedError struct {
	Class Class
	Cause error
}

func (e *ClassifiedError) Error() string {
	switch e.Class {
	case ClassTransient:
		return fmt.Sprintf("transient: %v", e.Cause)
	default:
		return fmt.Sprintf("fatal: %v", e.Cause)
	}
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Fatal marks err as non-retryable
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassFatal, Cause: err}
}

// Transient marks err as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassTransient, Cause: err}
}

// Retryable reports whether err should be retried by the queue. Unclassified
// errors default to retryable so a missed annotation degrades to the
// original system's retry-everything behavior rather than silent data loss.
func Retryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassTransient
	}
	return true
}

// AutomationError represents a failed automation step
type AutomationError struct {
	Step  string
	Cause error
}

func (e *AutomationError) Error() string {
	return fmt.Sprintf("automation step %q failed: %v", e.Step, e.Cause)
}

func (e *AutomationError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a bounded wait that elapsed
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s", e.Op)
}

// APIError represents a non-success response from an external provider
type APIError struct {
	Provider string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
