package domain

// Job status constants
const (
	JobStatusActivated      = "ACTIVATED"
	JobStatusRunning        = "RUNNING"
	JobStatusCompleted      = "COMPLETED"
	JobStatusFailed         = "FAILED"
	JobStatusRetryScheduled = "RETRY_SCHEDULED"
	JobStatusErrorThrown    = "ERROR_THROWN"
)

// ContentTypeJSON is the content type of every message this service publishes
const ContentTypeJSON = "application/json"
