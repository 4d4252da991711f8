package connector

// Header keywords read from a job's custom headers
const (
	HeaderResultVariable   = "resultVariable"
	HeaderResultExpression = "resultExpression"
	HeaderErrorExpression  = "errorExpression"
	HeaderRetryBackoff     = "retryBackoff"
)

// Job is one activated job delivered by the engine's job queue.
// It is read-only for the duration of a delivery.
type Job struct {
	Key                string
	Type               string
	Retries            int
	TenantID           string
	CustomHeaders      map[string]string
	Variables          string // serialized JSON input
	BPMNProcessID      string
	ProcessInstanceKey int64
	ElementID          string
}

// Header returns the custom header value for name, or "" if absent
func (j *Job) Header(name string) string {
	if j.CustomHeaders == nil {
		return ""
	}
	return j.CustomHeaders[name]
}

// decrementedRetries returns the retry budget left after one failed attempt
func (j *Job) decrementedRetries() int {
	return floorRetries(j.Retries - 1)
}

func floorRetries(retries int) int {
	if retries < 0 {
		return 0
	}
	return retries
}
