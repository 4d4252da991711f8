package connector

import (
	"errors"
	"fmt"
	"time"
)

// Classify maps an error returned by a connector function to a Failure.
// secrets are redacted from the message. Classify has no side effects.
func Classify(err error, job *Job, secrets []string, defaultBackoff time.Duration) Failure {
	message := Redact(err.Error(), secrets)

	switch kindOf(err) {
	case kindInvalidBackoff:
		return Failure{
			Message:   message,
			Retries:   intPtr(0),
			Variables: errorVariables(err, message, "", nil),
		}

	case kindRetry:
		var retryErr *RetryError
		errors.As(err, &retryErr)

		retries := job.decrementedRetries()
		if retryErr.Retries != nil {
			retries = floorRetries(*retryErr.Retries)
		}
		backoff := defaultBackoff
		if retryErr.Backoff != nil {
			backoff = *retryErr.Backoff
		}
		return Failure{
			ErrorCode: retryErr.Code,
			Message:   message,
			Retryable: retries > 0,
			Retries:   &retries,
			Backoff:   &backoff,
			Variables: errorVariables(err, message, retryErr.Code, retryErr.Variables),
		}

	case kindGeneric:
		retries := job.decrementedRetries()
		if IsInputError(err) {
			retries = 0
		}

		var code string
		var variables map[string]any
		var connErr *Error
		if errors.As(err, &connErr) {
			code = connErr.Code
			variables = connErr.Variables
		}

		backoff := defaultBackoff
		return Failure{
			ErrorCode: code,
			Message:   message,
			Retryable: retries > 0,
			Retries:   &retries,
			Backoff:   &backoff,
			Variables: errorVariables(err, message, code, variables),
		}
	}

	panic(fmt.Sprintf("connector: unhandled error kind %d", kindOf(err)))
}

// ClassifyFinal maps a fault raised after the connector function already succeeded.
// Re-running the function would not help, so retries are always 0.
func ClassifyFinal(err error, job *Job, secrets []string) Failure {
	message := Redact(err.Error(), secrets)
	return Failure{
		Message:   message,
		Retries:   intPtr(0),
		Variables: errorVariables(err, message, "", nil),
	}
}

// errorVariables builds the "error" variable attached to failed jobs
func errorVariables(err error, message, code string, variables map[string]any) map[string]any {
	detail := map[string]any{
		"type":    errorType(err),
		"message": message,
	}
	if code != "" {
		detail["code"] = code
	}
	if variables != nil {
		detail["variables"] = variables
	}
	return map[string]any{"error": detail}
}

// errorType names the innermost error in the chain
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

func intPtr(v int) *int {
	return &v
}
