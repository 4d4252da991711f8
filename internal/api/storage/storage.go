package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/connector-worker/internal/api/domain"
	"github.com/cuongbtq/connector-worker/internal/api/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const jobColumns = `
	job_key, job_type, tenant_id, status, retries,
	custom_headers, variables, bpmn_process_id, element_id, process_instance_key,
	worker_id, result, error_code, error_message, retry_backoff_ms,
	created_at, updated_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			job_key, job_type, tenant_id, status, retries,
			custom_headers, variables, bpmn_process_id, element_id, process_instance_key,
			created_at, updated_at
		) VALUES (
			:job_key, :job_type, :tenant_id, :status, :retries,
			:custom_headers, :variables, :bpmn_process_id, :element_id, :process_instance_key,
			:created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByKey(ctx context.Context, jobKey string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_key = $1`

	var job model.Job
	if err := s.db.GetContext(ctx, &job, query, jobKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ActivateJob moves a job back to ACTIVATED so it can be published again
func (s *Storage) ActivateJob(ctx context.Context, jobKey string) (*model.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1, worker_id = NULL, updated_at = NOW()
		WHERE job_key = $2 AND status = ANY($3)
		RETURNING ` + jobColumns

	var job model.Job
	err := s.db.GetContext(ctx, &job, query, domain.ActivatableStatuses[0], jobKey, pq.Array(domain.ActivatableStatuses))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotActivatable
		}
		return nil, fmt.Errorf("failed to activate job: %w", err)
	}

	return &job, nil
}

// DeleteJob removes a job in a terminal status
func (s *Storage) DeleteJob(ctx context.Context, jobKey string) error {
	query := `DELETE FROM jobs WHERE job_key = $1 AND status = ANY($2)`

	result, err := s.db.ExecContext(ctx, query, jobKey, pq.Array(domain.TerminalStatuses))
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrJobNotDeletable
	}

	return nil
}

type JobFilter struct {
	TenantID string
	JobType  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobKey    string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}

	if filter.JobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.JobType)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_key) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobKey)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_key DESC"

	// one extra row tells the caller there is a next page
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
