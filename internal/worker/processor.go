package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/connector-worker/internal/worker/domain"
)

// processJob claims a job, runs its handler with a timeout and reports whether a command went out
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	jobKey := msg.Job.JobKey

	// Step 1: Claim job in the database (ACTIVATED/RETRY_SCHEDULED → RUNNING)
	if err := w.store.ClaimJob(ctx, jobKey, w.workerID); err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			// Duplicate delivery or job finished elsewhere - don't requeue
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_key", jobKey),
			)
			return err
		}
		// Database error - could be transient
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	// Step 2: Create timeout context detached from shutdown so in-flight jobs run to completion
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.jobTimeout)
	defer cancel()

	// Step 3: Start heartbeat goroutine, stopped when the handler returns
	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, jobKey, heartbeatDone)
	defer close(heartbeatDone)

	// Step 4: Run the connector handler for the job type; it sends exactly one command through client
	client := newDeliveryClient(w)
	w.registry.Lookup(msg.Job.JobType).Handle(jobCtx, client, msg.Job.ToJob())

	// Step 5: Return error for NACK decision
	err := client.result()
	if err == nil {
		// Command sent - ACK even if recording the outcome failed
		return nil
	}

	if domain.IsRetryable(err) {
		// No command went out - release the claim so the redelivery can claim it again
		releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), w.commitTimeout)
		defer cancelRelease()
		if relErr := w.store.ReleaseJob(releaseCtx, jobKey); relErr != nil {
			w.logger.Error("Failed to release job claim",
				slog.String("job_key", jobKey),
				slog.Any("error", relErr),
			)
		}
	}
	return err
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobKey string, done <-chan struct{}) {
	// Use heartbeat interval from config (default 30s)
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.store.UpdateJobHeartbeat(ctx, jobKey); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_key", jobKey),
					slog.Any("error", err),
				)
			}
		}
	}
}
