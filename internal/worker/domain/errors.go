package domain

import "errors"

var (
	// ErrJobNotFound is returned when an outcome targets a job row that does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when the job is running elsewhere or already finished
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in an activatable status")

	// ErrInvalidMessage is returned when an activated job message cannot be decoded
	ErrInvalidMessage = errors.New("invalid job message")
)

// RetryableError marks a failure after which the delivery goes back to the queue
// and no command has been committed for the job
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as retryable
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err or anything it wraps is a RetryableError
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}
