package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ActivatedJob is the message published on the jobs queue
type ActivatedJob struct {
	JobKey             string            `json:"job_key" validate:"required,uuid"`
	JobType            string            `json:"job_type" validate:"required"`
	TenantID           string            `json:"tenant_id,omitempty"`
	Retries            int               `json:"retries" validate:"gte=0"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty"`
	Variables          json.RawMessage   `json:"variables,omitempty"`
	BPMNProcessID      string            `json:"bpmn_process_id,omitempty"`
	ProcessInstanceKey int64             `json:"process_instance_key,omitempty"`
	ElementID          string            `json:"element_id,omitempty"`
}

// DecodeActivatedJob parses and validates a jobs queue message body
func DecodeActivatedJob(body []byte, validate *validator.Validate) (*ActivatedJob, error) {
	var job ActivatedJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(&job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &job, nil
}

// ToJob converts the message into the job a connector handler runs
func (j *ActivatedJob) ToJob() *connector.Job {
	return &connector.Job{
		Key:                j.JobKey,
		Type:               j.JobType,
		Retries:            j.Retries,
		TenantID:           j.TenantID,
		CustomHeaders:      maps.Clone(j.CustomHeaders),
		Variables:          string(j.Variables),
		BPMNProcessID:      j.BPMNProcessID,
		ProcessInstanceKey: j.ProcessInstanceKey,
		ElementID:          j.ElementID,
	}
}

// JobMessage is an activated job paired with the delivery that carried it
type JobMessage struct {
	Job      *ActivatedJob
	Delivery amqp.Delivery
}

// CommandType names the command a worker sends back for a job
type CommandType string

const (
	CommandComplete   CommandType = "COMPLETE"
	CommandFail       CommandType = "FAIL"
	CommandThrowError CommandType = "THROW_ERROR"
)

// Command is the message published on the commands queue
type Command struct {
	Type           CommandType    `json:"type"`
	JobKey         string         `json:"job_key"`
	WorkerID       string         `json:"worker_id"`
	Variables      map[string]any `json:"variables,omitempty"`
	Retries        int            `json:"retries"`
	RetryBackoffMs int64          `json:"retry_backoff_ms,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}

// Status returns the job status this command leaves the job in
func (c *Command) Status() string {
	switch c.Type {
	case CommandComplete:
		return JobStatusCompleted
	case CommandThrowError:
		return JobStatusErrorThrown
	}
	if c.Retries > 0 {
		return JobStatusRetryScheduled
	}
	return JobStatusFailed
}
