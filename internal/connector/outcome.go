package connector

import "time"

// Outcome is the result of one invocation: either Success or Failure
type Outcome interface {
	isOutcome()
}

// Success holds the connector function's return value
type Success struct {
	Value any
}

// Failure is the classification of a failed invocation.
// Retries and Backoff are overrides; nil means the job's decremented budget and the default backoff.
type Failure struct {
	ErrorCode string
	Message   string
	Retryable bool
	Retries   *int
	Backoff   *time.Duration
	Variables map[string]any
}

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

// ResolveRetries returns the retry count to commit, never negative
func (f Failure) ResolveRetries(job *Job) int {
	if f.Retries != nil {
		return floorRetries(*f.Retries)
	}
	return job.decrementedRetries()
}

// ResolveBackoff returns the backoff override, or def when none was set
func (f Failure) ResolveBackoff(def time.Duration) time.Duration {
	if f.Backoff != nil {
		return *f.Backoff
	}
	return def
}
