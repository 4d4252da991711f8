package connector

import (
	"context"
	"time"
)

// DefaultMaxErrorMessageLength bounds messages sent to the job queue
const DefaultMaxErrorMessageLength = 6000

// FailCommand fails a job, leaving Retries re-deliveries
type FailCommand struct {
	Retries      int
	Backoff      time.Duration // zero leaves the engine default
	ErrorMessage string
	Variables    map[string]any
}

// ThrowErrorCommand raises a business error in the process
type ThrowErrorCommand struct {
	ErrorCode    string
	ErrorMessage string
	Variables    map[string]any
}

// JobClient sends the terminal command for a job. Each call either fully succeeds or returns an error.
type JobClient interface {
	Complete(ctx context.Context, job *Job, variables map[string]any) error
	Fail(ctx context.Context, job *Job, cmd FailCommand) error
	ThrowError(ctx context.Context, job *Job, cmd ThrowErrorCommand) error
}

// Truncate cuts message to at most limit characters
func Truncate(message string, limit int) string {
	if limit <= 0 {
		return message
	}
	count := 0
	for i := range message {
		if count == limit {
			return message[:i]
		}
		count++
	}
	return message
}
