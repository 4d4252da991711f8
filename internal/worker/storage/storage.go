package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/connector-worker/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob marks an activated job as running on workerID.
// Only jobs in ACTIVATED or RETRY_SCHEDULED can be claimed.
func (s *Storage) ClaimJob(ctx context.Context, jobKey, workerID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_key = $3
		  AND status IN ($4, $5)
		RETURNING job_key
	`

	var claimed string
	err := s.db.QueryRowxContext(ctx, query,
		domain.JobStatusRunning, workerID, jobKey,
		domain.JobStatusActivated, domain.JobStatusRetryScheduled,
	).Scan(&claimed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobAlreadyClaimed
		}
		return fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Debug("Job claimed",
		slog.String("job_key", jobKey),
		slog.String("worker_id", workerID),
	)
	return nil
}

// ReleaseJob hands a running job back so a redelivery can claim it again
func (s *Storage) ReleaseJob(ctx context.Context, jobKey string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE job_key = $2 AND status = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusActivated, jobKey, domain.JobStatusRunning); err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

// RecordOutcome stores the command sent for a job
func (s *Storage) RecordOutcome(ctx context.Context, cmd *domain.Command) error {
	query := `
		UPDATE jobs
		SET status = $1::text,
		    retries = $2,
		    retry_backoff_ms = $3,
		    error_code = NULLIF($4, ''),
		    error_message = NULLIF($5, ''),
		    result = $6,
		    completed_at = CASE
		        WHEN $1::text IN ($7::text, $8::text, $9::text) THEN NOW()
		        ELSE NULL
		    END,
		    updated_at = NOW()
		WHERE job_key = $10
	`

	var variables []byte
	if cmd.Variables != nil {
		var err error
		variables, err = json.Marshal(cmd.Variables)
		if err != nil {
			return fmt.Errorf("failed to marshal variables: %w", err)
		}
	}

	status := cmd.Status()
	result, err := s.db.ExecContext(ctx, query,
		status, cmd.Retries, cmd.RetryBackoffMs, cmd.ErrorCode, cmd.ErrorMessage, variables,
		domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusErrorThrown,
		cmd.JobKey,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrJobNotFound
	}

	s.logger.Debug("Job outcome recorded",
		slog.String("job_key", cmd.JobKey),
		slog.String("status", status),
	)
	return nil
}

// UpdateJobHeartbeat updates the last_heartbeat_at timestamp for a running job
func (s *Storage) UpdateJobHeartbeat(ctx context.Context, jobKey string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_key = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, jobKey, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be running)",
			slog.String("job_key", jobKey),
		)
	}

	return nil
}
