package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cuongbtq/connector-worker/internal/worker/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobKey = "6f1c2b7e-4a8e-4f55-9a32-0c9b3f4e2d10"

func newTestStorage(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStorage(sqlx.NewDb(db, "sqlmock"), slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestStorage_ClaimJob(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
		anyErr  bool
	}{
		{
			name: "claimed",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`UPDATE jobs`).
					WithArgs(domain.JobStatusRunning, "worker-1", jobKey, domain.JobStatusActivated, domain.JobStatusRetryScheduled).
					WillReturnRows(sqlmock.NewRows([]string{"job_key"}).AddRow(jobKey))
			},
		},
		{
			name: "already claimed",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`UPDATE jobs`).WillReturnRows(sqlmock.NewRows([]string{"job_key"}))
			},
			wantErr: domain.ErrJobAlreadyClaimed,
		},
		{
			name: "database error",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`UPDATE jobs`).WillReturnError(errors.New("connection refused"))
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStorage(t)
			tt.setup(mock)

			err := s.ClaimJob(context.Background(), jobKey, "worker-1")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, domain.ErrJobAlreadyClaimed)
			default:
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_RecordOutcome(t *testing.T) {
	tests := []struct {
		name       string
		cmd        *domain.Command
		wantStatus string
		wantResult []byte
	}{
		{
			name:       "complete stores variables",
			cmd:        &domain.Command{Type: domain.CommandComplete, JobKey: jobKey, Variables: map[string]any{"a": 1}},
			wantStatus: domain.JobStatusCompleted,
			wantResult: []byte(`{"a":1}`),
		},
		{
			name:       "fail with retries left",
			cmd:        &domain.Command{Type: domain.CommandFail, JobKey: jobKey, Retries: 2, RetryBackoffMs: 1000, ErrorMessage: "boom"},
			wantStatus: domain.JobStatusRetryScheduled,
			wantResult: []byte(nil),
		},
		{
			name:       "throw error",
			cmd:        &domain.Command{Type: domain.CommandThrowError, JobKey: jobKey, ErrorCode: "E1", ErrorMessage: "bad"},
			wantStatus: domain.JobStatusErrorThrown,
			wantResult: []byte(nil),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStorage(t)
			mock.ExpectExec(`UPDATE jobs`).
				WithArgs(tt.wantStatus, tt.cmd.Retries, tt.cmd.RetryBackoffMs, tt.cmd.ErrorCode, tt.cmd.ErrorMessage, tt.wantResult,
					domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusErrorThrown, jobKey).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, s.RecordOutcome(context.Background(), tt.cmd))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStorage_RecordOutcomeMissingJob(t *testing.T) {
	s, mock := newTestStorage(t)
	mock.ExpectExec(`UPDATE jobs`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.RecordOutcome(context.Background(), &domain.Command{Type: domain.CommandComplete, JobKey: jobKey})
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestStorage_ReleaseJob(t *testing.T) {
	s, mock := newTestStorage(t)
	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(domain.JobStatusActivated, jobKey, domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.ReleaseJob(context.Background(), jobKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorage_UpdateJobHeartbeat(t *testing.T) {
	s, mock := newTestStorage(t)
	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(jobKey, domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.UpdateJobHeartbeat(context.Background(), jobKey))
	assert.NoError(t, mock.ExpectationsWereMet())
}
