package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/cuongbtq/connector-worker/internal/worker/domain"
)

var errNoCommand = errors.New("handler sent no command")

// deliveryClient publishes the command for one delivery and records it in the job store
type deliveryClient struct {
	w    *Worker
	mu   sync.Mutex
	sent int
	err  error
}

func newDeliveryClient(w *Worker) *deliveryClient {
	return &deliveryClient{w: w}
}

func (c *deliveryClient) Complete(ctx context.Context, job *connector.Job, variables map[string]any) error {
	return c.send(ctx, job, &domain.Command{
		Type:      domain.CommandComplete,
		Variables: variables,
	})
}

func (c *deliveryClient) Fail(ctx context.Context, job *connector.Job, cmd connector.FailCommand) error {
	return c.send(ctx, job, &domain.Command{
		Type:           domain.CommandFail,
		Retries:        cmd.Retries,
		RetryBackoffMs: cmd.Backoff.Milliseconds(),
		ErrorMessage:   cmd.ErrorMessage,
		Variables:      cmd.Variables,
	})
}

func (c *deliveryClient) ThrowError(ctx context.Context, job *connector.Job, cmd connector.ThrowErrorCommand) error {
	return c.send(ctx, job, &domain.Command{
		Type:         domain.CommandThrowError,
		ErrorCode:    cmd.ErrorCode,
		ErrorMessage: cmd.ErrorMessage,
		Variables:    cmd.Variables,
	})
}

// send runs on a context detached from the job timeout so a timed-out job can still be reported
func (c *deliveryClient) send(ctx context.Context, job *connector.Job, cmd *domain.Command) error {
	cmd.JobKey = job.Key
	cmd.WorkerID = c.w.workerID
	cmd.SentAt = time.Now().UTC()

	body, err := json.Marshal(cmd)
	if err != nil {
		return c.done(fmt.Errorf("failed to marshal %s command: %w", cmd.Type, err))
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.w.commitTimeout)
	defer cancel()

	if err := c.w.broker.PublishWithRetry(sendCtx, c.w.commandsRoutingKey, body, domain.ContentTypeJSON); err != nil {
		return c.done(domain.NewRetryableError(fmt.Errorf("failed to publish %s command: %w", cmd.Type, err)))
	}

	if err := c.w.store.RecordOutcome(sendCtx, cmd); err != nil {
		c.w.logger.Error("Failed to record job outcome",
			slog.String("job_key", cmd.JobKey),
			slog.String("command", string(cmd.Type)),
			slog.Any("error", err),
		)
	}
	return c.done(nil)
}

func (c *deliveryClient) done(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	c.err = err
	return err
}

// result reports how the delivery ended: nil when exactly one command was published
func (c *deliveryClient) result() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.sent == 0:
		return domain.NewRetryableError(errNoCommand)
	case c.sent > 1:
		return fmt.Errorf("handler sent %d commands", c.sent)
	}
	return c.err
}
