package connector

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingSecret is returned when the input references a secret no provider knows
	ErrMissingSecret = errors.New("secret not available")

	// ErrNoFunction is returned when no connector function is registered for a job type
	ErrNoFunction = errors.New("no connector function registered for job type")
)

// Error is a structured error raised by a connector function. Its Code is visible to the process.
type Error struct {
	Code      string
	Message   string
	Variables map[string]any
	Err       error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a structured connector error with an error code
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// RetryError is returned by a connector function to request specific retry behavior.
// Nil Retries or Backoff fall back to the job's decremented budget and the default backoff.
type RetryError struct {
	Code      string
	Message   string
	Retries   *int
	Backoff   *time.Duration
	Variables map[string]any
	Err       error
}

func (e *RetryError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "retry requested"
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// RetryOption configures a RetryError
type RetryOption func(*RetryError)

// WithRetries sets an explicit retry count
func WithRetries(retries int) RetryOption {
	return func(e *RetryError) { e.Retries = &retries }
}

// WithBackoff sets an explicit backoff duration
func WithBackoff(backoff time.Duration) RetryOption {
	return func(e *RetryError) { e.Backoff = &backoff }
}

// WithCode sets the error code
func WithCode(code string) RetryOption {
	return func(e *RetryError) { e.Code = code }
}

// WithVariables attaches variables to the failure
func WithVariables(variables map[string]any) RetryOption {
	return func(e *RetryError) { e.Variables = variables }
}

// NewRetryError creates a caller-directed retry
func NewRetryError(message string, opts ...RetryOption) *RetryError {
	e := &RetryError{Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InputError marks invalid connector input. Jobs failing with it are never retried.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return "invalid input: " + e.Err.Error()
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// NewInputError wraps err as an input validation error
func NewInputError(err error) error {
	return &InputError{Err: err}
}

// InvalidBackoffError is returned when the retryBackoff header is not an ISO-8601 duration
type InvalidBackoffError struct {
	Value string
	Err   error
}

func (e *InvalidBackoffError) Error() string {
	return fmt.Sprintf("Failed to parse retry backoff header. Expected ISO-8601 duration, e.g. PT5M, got: %s", e.Value)
}

func (e *InvalidBackoffError) Unwrap() error {
	return e.Err
}

// errorKind is the classifier's dispatch key, ordered by precedence
type errorKind int

const (
	kindGeneric errorKind = iota
	kindInvalidBackoff
	kindRetry
)

func kindOf(err error) errorKind {
	var backoffErr *InvalidBackoffError
	if errors.As(err, &backoffErr) {
		return kindInvalidBackoff
	}
	var retryErr *RetryError
	if errors.As(err, &retryErr) {
		return kindRetry
	}
	return kindGeneric
}

// IsInputError reports whether err or any error it wraps is an InputError
func IsInputError(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}
