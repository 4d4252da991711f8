package dto

import "encoding/json"

type CreateJobRequest struct {
	JobType            string            `json:"job_type" binding:"required,max=255"`
	TenantID           string            `json:"tenant_id" binding:"max=255"`
	Retries            *int              `json:"retries" binding:"omitempty,gte=0,lte=100"`
	CustomHeaders      map[string]string `json:"custom_headers"`
	Variables          json.RawMessage   `json:"variables"`
	BPMNProcessID      string            `json:"bpmn_process_id"`
	ElementID          string            `json:"element_id"`
	ProcessInstanceKey int64             `json:"process_instance_key"`
}

type ListJobsRequest struct {
	TenantID string `form:"tenant_id"`
	JobType  string `form:"job_type"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobKey             string            `json:"job_key"`
	JobType            string            `json:"job_type"`
	TenantID           string            `json:"tenant_id,omitempty"`
	Status             string            `json:"status"`
	Retries            int               `json:"retries"`
	CustomHeaders      map[string]string `json:"custom_headers,omitempty"`
	Variables          json.RawMessage   `json:"variables,omitempty"`
	BPMNProcessID      string            `json:"bpmn_process_id,omitempty"`
	ElementID          string            `json:"element_id,omitempty"`
	ProcessInstanceKey int64             `json:"process_instance_key,omitempty"`
	WorkerID           string            `json:"worker_id,omitempty"`
	Result             json.RawMessage   `json:"result,omitempty"`
	ErrorCode          string            `json:"error_code,omitempty"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	RetryBackoffMs     int64             `json:"retry_backoff_ms,omitempty"`
	CreatedAt          string            `json:"created_at"`
	UpdatedAt          string            `json:"updated_at"`
}
