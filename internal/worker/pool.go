package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/connector-worker/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine.
// It processes jobs until jobsChan is closed.
// Jobs still buffered after ctx is canceled are requeued unprocessed.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for msg := range w.jobsChan {
		if ctx.Err() != nil {
			// Shutting down - hand buffered jobs back to the queue unprocessed
			w.nack(workerName, msg, true)
			continue
		}

		// Process the job
		if err := w.processJob(ctx, msg); err != nil {
			w.logger.Warn("Job delivery not committed",
				slog.String("worker_name", workerName),
				slog.String("job_key", msg.Job.JobKey),
				slog.Any("error", err),
			)
			// Smart requeue decision based on error type
			w.nack(workerName, msg, w.shouldRequeueJob(err))
			continue
		}

		// Command sent - ACK the message
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("worker_name", workerName),
				slog.String("job_key", msg.Job.JobKey),
				slog.Any("error", ackErr),
			)
		}
	}
}

func (w *Worker) nack(workerName string, msg *domain.JobMessage, requeue bool) {
	if err := msg.Delivery.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("worker_name", workerName),
			slog.String("job_key", msg.Job.JobKey),
			slog.Any("error", err),
		)
		return
	}
	w.logger.Debug("Message NACKed",
		slog.String("worker_name", workerName),
		slog.String("job_key", msg.Job.JobKey),
		slog.Bool("requeue", requeue),
	)
}

// shouldRequeueJob determines if a delivery should be requeued based on the error type
func (w *Worker) shouldRequeueJob(err error) bool {
	// Don't requeue if job already claimed by another worker
	if errors.Is(err, domain.ErrJobAlreadyClaimed) {
		return false
	}

	// Requeue for transient/retryable errors, drop everything else
	return domain.IsRetryable(err)
}
