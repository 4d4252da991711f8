package domain

import (
	"errors"
	"slices"

	workerdomain "github.com/cuongbtq/connector-worker/internal/worker/domain"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotActivatable = errors.New("job is not waiting for activation")
	ErrJobNotDeletable   = errors.New("job has not finished")
)

// DefaultRetries is used when a create request does not set retries
const DefaultRetries = 3

// ActivatableStatuses can be (re)published to the jobs queue
var ActivatableStatuses = []string{workerdomain.JobStatusActivated, workerdomain.JobStatusRetryScheduled}

// TerminalStatuses are final; jobs in them may be deleted
var TerminalStatuses = []string{workerdomain.JobStatusCompleted, workerdomain.JobStatusFailed, workerdomain.JobStatusErrorThrown}

// IsTerminal reports whether status is final
func IsTerminal(status string) bool {
	return slices.Contains(TerminalStatuses, status)
}
