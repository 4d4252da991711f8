package connector

import (
	"errors"
	"time"

	"github.com/sosodev/duration"
)

// parseRetryBackoff reads an ISO-8601 duration such as PT5M or P1D.
// An empty value yields def.
func parseRetryBackoff(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	parsed, err := duration.Parse(value)
	if err != nil {
		return 0, &InvalidBackoffError{Value: value, Err: err}
	}
	backoff := parsed.ToTimeDuration()
	if backoff < 0 {
		return 0, &InvalidBackoffError{Value: value, Err: errors.New("backoff must not be negative")}
	}
	return backoff, nil
}
