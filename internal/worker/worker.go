package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cuongbtq/connector-worker/internal/worker/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// JobStore persists job claims and outcomes
type JobStore interface {
	ClaimJob(ctx context.Context, jobKey, workerID string) error
	ReleaseJob(ctx context.Context, jobKey string) error
	RecordOutcome(ctx context.Context, cmd *domain.Command) error
	UpdateJobHeartbeat(ctx context.Context, jobKey string) error
}

// Broker delivers activated jobs and accepts job commands
type Broker interface {
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Config holds worker configuration
type Config struct {
	Logger             *slog.Logger
	Store              JobStore
	Broker             Broker
	Registry           *Registry
	Validate           *validator.Validate
	JobsQueue          string
	CommandsRoutingKey string
	ConsumerTag        string
	Concurrency        int
	BufferSize         int
	JobTimeout         time.Duration
	CommitTimeout      time.Duration
	HeartbeatInterval  time.Duration
}

// Worker consumes activated jobs and runs them on a fixed pool of goroutines
type Worker struct {
	logger             *slog.Logger
	store              JobStore
	broker             Broker
	registry           *Registry
	validate           *validator.Validate
	jobsQueue          string
	commandsRoutingKey string
	consumerTag        string
	workerID           string
	concurrency        int
	jobTimeout         time.Duration
	commitTimeout      time.Duration
	heartbeatInterval  time.Duration
	jobsChan           chan *domain.JobMessage
	wg                 sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:             cfg.Logger,
		store:              cfg.Store,
		broker:             cfg.Broker,
		registry:           cfg.Registry,
		validate:           cfg.Validate,
		jobsQueue:          cfg.JobsQueue,
		commandsRoutingKey: cfg.CommandsRoutingKey,
		consumerTag:        cfg.ConsumerTag,
		workerID:           newWorkerID(),
		concurrency:        max(cfg.Concurrency, 1),
		jobTimeout:         cfg.JobTimeout,
		commitTimeout:      cfg.CommitTimeout,
		heartbeatInterval:  cfg.HeartbeatInterval,
	}
	if w.validate == nil {
		w.validate = validator.New()
	}
	if w.commitTimeout <= 0 {
		w.commitTimeout = 10 * time.Second
	}
	if w.heartbeatInterval <= 0 {
		w.heartbeatInterval = 30 * time.Second
	}
	if w.consumerTag == "" {
		w.consumerTag = w.workerID
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 5 * time.Minute
	}
	w.jobsChan = make(chan *domain.JobMessage, max(cfg.BufferSize, 0))
	return w
}

func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// ID returns the identifier this worker claims jobs under
func (w *Worker) ID() string {
	return w.workerID
}

// Start consumes jobs until ctx is canceled or the delivery channel closes,
// then waits for in-flight jobs to finish.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.Any("job_types", w.registry.Types()),
	)

	deliveries, err := w.broker.Consume(w.jobsQueue, w.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	close(w.jobsChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return nil
}
