package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/connector-worker/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// startMessageDispatcher listens to RabbitMQ deliveries and dispatches jobs to worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
		slog.String("queue", w.jobsQueue),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			// Decode and validate the activated job (job_key must be a UUID)
			job, err := domain.DecodeActivatedJob(delivery.Body, w.validate)
			if err != nil {
				w.logger.Error("Dropping malformed job message",
					slog.Any("error", err),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
				// NACK message without requeue - malformed messages should go to DLQ
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			// Send to worker pool via jobsChan
			select {
			case w.jobsChan <- &domain.JobMessage{Job: job, Delivery: delivery}:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_key", job.JobKey),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching job")
				// NACK the message so another worker can process it
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return
			}
		}
	}
}
