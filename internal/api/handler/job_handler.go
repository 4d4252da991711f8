package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/connector-worker/internal/api/domain"
	"github.com/cuongbtq/connector-worker/internal/api/dto"
	"github.com/cuongbtq/connector-worker/internal/api/model"
	"github.com/cuongbtq/connector-worker/internal/api/storage"
	workerdomain "github.com/cuongbtq/connector-worker/internal/worker/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateJob handles POST /api/v1/jobs
// Stores a new activated job and publishes it to the jobs queue
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if len(req.Variables) > 0 && !json.Valid(req.Variables) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "variables must be valid JSON",
		})
		return
	}

	retries := domain.DefaultRetries
	if req.Retries != nil {
		retries = *req.Retries
	}

	headers, err := json.Marshal(req.CustomHeaders)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid custom headers",
		})
		return
	}

	now := time.Now().UTC()
	job := model.Job{
		JobKey:             uuid.NewString(),
		JobType:            req.JobType,
		TenantID:           req.TenantID,
		Status:             workerdomain.JobStatusActivated,
		Retries:            retries,
		CustomHeaders:      headers,
		Variables:          req.Variables,
		BPMNProcessID:      req.BPMNProcessID,
		ElementID:          req.ElementID,
		ProcessInstanceKey: req.ProcessInstanceKey,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := h.store.CreateJob(c.Request.Context(), &job); err != nil {
		h.logger.Error("Failed to create job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	if err := h.publish(c.Request.Context(), &job); err != nil {
		// the row stays ACTIVATED; POST /activate republishes it
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to publish job",
			"job_key": job.JobKey,
		})
		return
	}

	h.logger.Info("Job activated",
		slog.String("job_key", job.JobKey),
		slog.String("job_type", job.JobType),
		slog.String("tenant_id", job.TenantID),
	)
	c.JSON(http.StatusCreated, toJobDTO(&job))
}

// GetJob handles GET /api/v1/jobs/:job_key
func (h *JobHandler) GetJob(c *gin.Context) {
	jobKey, ok := h.jobKeyParam(c)
	if !ok {
		return
	}

	job, err := h.store.GetJobByKey(c.Request.Context(), jobKey)
	if err != nil {
		h.respondStoreError(c, err, "Failed to get job")
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), storage.JobFilter{
		TenantID: req.TenantID,
		JobType:  req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobDTO(&jobs[i])
	}
	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobKey:    last.JobKey,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ActivateJob handles POST /api/v1/jobs/:job_key/activate
// Republishes a job that is waiting for activation or has a retry scheduled
func (h *JobHandler) ActivateJob(c *gin.Context) {
	jobKey, ok := h.jobKeyParam(c)
	if !ok {
		return
	}

	job, err := h.store.ActivateJob(c.Request.Context(), jobKey)
	if err != nil {
		h.respondStoreError(c, err, "Failed to activate job")
		return
	}

	if err := h.publish(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to publish job",
			"job_key": job.JobKey,
		})
		return
	}

	c.JSON(http.StatusAccepted, toJobDTO(job))
}

// DeleteJob handles DELETE /api/v1/jobs/:job_key
// Only finished jobs can be deleted
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobKey, ok := h.jobKeyParam(c)
	if !ok {
		return
	}

	err := h.store.DeleteJob(c.Request.Context(), jobKey)
	if errors.Is(err, domain.ErrJobNotDeletable) {
		// tell a missing job apart from an unfinished one
		if _, getErr := h.store.GetJobByKey(c.Request.Context(), jobKey); getErr != nil {
			err = getErr
		}
	}
	if err != nil {
		h.respondStoreError(c, err, "Failed to delete job")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *JobHandler) publish(ctx context.Context, job *model.Job) error {
	var headers map[string]string
	if len(job.CustomHeaders) > 0 {
		if err := json.Unmarshal(job.CustomHeaders, &headers); err != nil {
			return err
		}
	}

	body, err := json.Marshal(&workerdomain.ActivatedJob{
		JobKey:             job.JobKey,
		JobType:            job.JobType,
		TenantID:           job.TenantID,
		Retries:            job.Retries,
		CustomHeaders:      headers,
		Variables:          job.Variables,
		BPMNProcessID:      job.BPMNProcessID,
		ProcessInstanceKey: job.ProcessInstanceKey,
		ElementID:          job.ElementID,
	})
	if err != nil {
		return err
	}

	if err := h.publisher.PublishWithRetry(ctx, h.jobsRoutingKey, body, workerdomain.ContentTypeJSON); err != nil {
		h.logger.Error("Failed to publish job",
			slog.String("job_key", job.JobKey),
			slog.Any("error", err),
		)
		return err
	}
	return nil
}

func (h *JobHandler) jobKeyParam(c *gin.Context) (string, bool) {
	jobKey := c.Param("job_key")
	if _, err := uuid.Parse(jobKey); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_key must be a valid UUID",
		})
		return "", false
	}
	return jobKey, true
}

func (h *JobHandler) respondStoreError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotActivatable), errors.Is(err, domain.ErrJobNotDeletable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error(message, slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

func toJobDTO(job *model.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobKey:             job.JobKey,
		JobType:            job.JobType,
		TenantID:           job.TenantID,
		Status:             job.Status,
		Retries:            job.Retries,
		BPMNProcessID:      job.BPMNProcessID,
		ElementID:          job.ElementID,
		ProcessInstanceKey: job.ProcessInstanceKey,
		WorkerID:           job.WorkerID.String,
		ErrorCode:          job.ErrorCode.String,
		ErrorMessage:       job.ErrorMessage.String,
		RetryBackoffMs:     job.RetryBackoffMs,
		CreatedAt:          job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          job.UpdatedAt.Format(time.RFC3339),
	}
	if len(job.Variables) > 0 {
		out.Variables = json.RawMessage(job.Variables)
	}
	if len(job.Result) > 0 {
		out.Result = json.RawMessage(job.Result)
	}
	if len(job.CustomHeaders) > 0 {
		_ = json.Unmarshal(job.CustomHeaders, &out.CustomHeaders)
	}
	return out
}
