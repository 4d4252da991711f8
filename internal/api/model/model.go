package model

import (
	"database/sql"
	"time"
)

type Job struct {
	JobKey             string         `db:"job_key"`
	JobType            string         `db:"job_type"`
	TenantID           string         `db:"tenant_id"`
	Status             string         `db:"status"`
	Retries            int            `db:"retries"`
	CustomHeaders      []byte         `db:"custom_headers"`
	Variables          []byte         `db:"variables"`
	BPMNProcessID      string         `db:"bpmn_process_id"`
	ElementID          string         `db:"element_id"`
	ProcessInstanceKey int64          `db:"process_instance_key"`
	WorkerID           sql.NullString `db:"worker_id"`
	Result             []byte         `db:"result"`
	ErrorCode          sql.NullString `db:"error_code"`
	ErrorMessage       sql.NullString `db:"error_message"`
	RetryBackoffMs     int64          `db:"retry_backoff_ms"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}
