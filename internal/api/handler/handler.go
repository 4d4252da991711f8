package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/connector-worker/internal/api/model"
	"github.com/cuongbtq/connector-worker/internal/api/storage"
)

// JobStore is the persistence the job handlers need
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByKey(ctx context.Context, jobKey string) (*model.Job, error)
	ActivateJob(ctx context.Context, jobKey string) (*model.Job, error)
	DeleteJob(ctx context.Context, jobKey string) error
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
}

// Publisher sends activated jobs to the broker
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Store          JobStore
	Publisher      Publisher
	JobsRoutingKey string
	ServiceName    string
	HealthChecks   map[string]HealthCheck
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger         *slog.Logger
	store          JobStore
	publisher      Publisher
	jobsRoutingKey string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:         deps.Logger,
		store:          deps.Store,
		publisher:      deps.Publisher,
		jobsRoutingKey: deps.JobsRoutingKey,
	}
}
