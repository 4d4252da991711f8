package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/cuongbtq/connector-worker/internal/worker/domain"
	"github.com/go-playground/validator/v10"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testJobKey      = "6f1c2b7e-4a8e-4f55-9a32-0c9b3f4e2d10"
	testRoutingKey  = "jobs.commands"
	testJobsQueue   = "connector_jobs"
	echoJobType     = "io.example:echo:1"
	failingJobType  = "io.example:failing:1"
	businessJobType = "io.example:business:1"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ClaimJob(ctx context.Context, jobKey, workerID string) error {
	return m.Called(ctx, jobKey, workerID).Error(0)
}

func (m *mockStore) ReleaseJob(ctx context.Context, jobKey string) error {
	return m.Called(ctx, jobKey).Error(0)
}

func (m *mockStore) RecordOutcome(ctx context.Context, cmd *domain.Command) error {
	return m.Called(ctx, cmd).Error(0)
}

func (m *mockStore) UpdateJobHeartbeat(ctx context.Context, jobKey string) error {
	return m.Called(ctx, jobKey).Error(0)
}

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	args := m.Called(queue, consumerTag)
	deliveries, _ := args.Get(0).(<-chan amqp.Delivery)
	return deliveries, args.Error(1)
}

func (m *mockBroker) PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error {
	return m.Called(ctx, routingKey, body, contentType).Error(0)
}

// acknowledger records how each delivery tag was settled
type acknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked map[uint64]bool
}

func newAcknowledger() *acknowledger {
	return &acknowledger{nacked: make(map[uint64]bool)}
}

func (a *acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked[tag] = requeue
	return nil
}

func (a *acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func newTestWorker(store JobStore, broker Broker) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry(&connector.HandlerConfig{
		Logger:   logger,
		Validate: validator.New(),
	})
	registry.Register(echoJobType, connector.FunctionFunc(func(_ context.Context, execCtx *connector.ExecutionContext) (any, error) {
		var input map[string]any
		if err := execCtx.BindVariables(&input); err != nil {
			return nil, err
		}
		return input, nil
	}))
	registry.Register(failingJobType, connector.FunctionFunc(func(context.Context, *connector.ExecutionContext) (any, error) {
		return nil, errors.New("downstream unavailable")
	}))
	registry.Register(businessJobType, connector.FunctionFunc(func(context.Context, *connector.ExecutionContext) (any, error) {
		return nil, connector.NewError("NOT_FOUND", "order missing")
	}))

	return NewWorker(&Config{
		Logger:             logger,
		Store:              store,
		Broker:             broker,
		Registry:           registry,
		JobsQueue:          testJobsQueue,
		CommandsRoutingKey: testRoutingKey,
		Concurrency:        2,
		JobTimeout:         time.Second,
		HeartbeatInterval:  time.Hour,
	})
}

func jobMessage(jobType string, retries int) *domain.JobMessage {
	return &domain.JobMessage{Job: &domain.ActivatedJob{
		JobKey:    testJobKey,
		JobType:   jobType,
		Retries:   retries,
		Variables: json.RawMessage(`{"message":"hi"}`),
	}}
}

func capturePublished(broker *mockBroker, err error) *[]domain.Command {
	var published []domain.Command
	broker.On("PublishWithRetry", mock.Anything, testRoutingKey, mock.Anything, domain.ContentTypeJSON).
		Return(err).
		Run(func(args mock.Arguments) {
			var cmd domain.Command
			if json.Unmarshal(args.Get(2).([]byte), &cmd) == nil {
				published = append(published, cmd)
			}
		})
	return &published
}

func TestProcessJob_Commands(t *testing.T) {
	tests := []struct {
		name        string
		jobType     string
		retries     int
		wantType    domain.CommandType
		wantRetries int
		wantCode    string
	}{
		{name: "completes echo job", jobType: echoJobType, retries: 3, wantType: domain.CommandComplete},
		{name: "fails with decremented retries", jobType: failingJobType, retries: 3, wantType: domain.CommandFail, wantRetries: 2},
		{name: "throws business error on last retry", jobType: businessJobType, retries: 1, wantType: domain.CommandThrowError, wantCode: "NOT_FOUND"},
		{name: "unknown job type fails", jobType: "io.example:unknown:1", retries: 3, wantType: domain.CommandFail, wantRetries: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			broker := &mockBroker{}
			w := newTestWorker(store, broker)

			store.On("ClaimJob", mock.Anything, testJobKey, w.ID()).Return(nil)
			store.On("RecordOutcome", mock.Anything, mock.AnythingOfType("*domain.Command")).Return(nil)
			published := capturePublished(broker, nil)

			err := w.processJob(context.Background(), jobMessage(tt.jobType, tt.retries))
			require.NoError(t, err)

			require.Len(t, *published, 1)
			cmd := (*published)[0]
			assert.Equal(t, tt.wantType, cmd.Type)
			assert.Equal(t, testJobKey, cmd.JobKey)
			assert.Equal(t, w.ID(), cmd.WorkerID)
			assert.Equal(t, tt.wantRetries, cmd.Retries)
			assert.Equal(t, tt.wantCode, cmd.ErrorCode)
			store.AssertNumberOfCalls(t, "RecordOutcome", 1)
			store.AssertNotCalled(t, "ReleaseJob", mock.Anything, mock.Anything)
		})
	}
}

func TestProcessJob_CompleteVariables(t *testing.T) {
	store := &mockStore{}
	broker := &mockBroker{}
	w := newTestWorker(store, broker)

	store.On("ClaimJob", mock.Anything, testJobKey, w.ID()).Return(nil)
	store.On("RecordOutcome", mock.Anything, mock.MatchedBy(func(cmd *domain.Command) bool {
		return cmd.Type == domain.CommandComplete
	})).Return(nil)
	capturePublished(broker, nil)

	msg := jobMessage(echoJobType, 3)
	msg.Job.CustomHeaders = map[string]string{connector.HeaderResultVariable: "echo"}
	require.NoError(t, w.processJob(context.Background(), msg))

	store.AssertExpectations(t)
}

func TestProcessJob_PublishFailureReleasesClaim(t *testing.T) {
	store := &mockStore{}
	broker := &mockBroker{}
	w := newTestWorker(store, broker)

	store.On("ClaimJob", mock.Anything, testJobKey, w.ID()).Return(nil)
	store.On("ReleaseJob", mock.Anything, testJobKey).Return(nil)
	capturePublished(broker, errors.New("channel closed"))

	err := w.processJob(context.Background(), jobMessage(echoJobType, 3))
	require.Error(t, err)

	var retryable *domain.RetryableError
	assert.ErrorAs(t, err, &retryable)
	assert.True(t, w.shouldRequeueJob(err))
	store.AssertCalled(t, "ReleaseJob", mock.Anything, testJobKey)
	store.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything)
}

func TestProcessJob_RecordFailureStillCommits(t *testing.T) {
	store := &mockStore{}
	broker := &mockBroker{}
	w := newTestWorker(store, broker)

	store.On("ClaimJob", mock.Anything, testJobKey, w.ID()).Return(nil)
	store.On("RecordOutcome", mock.Anything, mock.Anything).Return(errors.New("deadlock detected"))
	capturePublished(broker, nil)

	assert.NoError(t, w.processJob(context.Background(), jobMessage(echoJobType, 3)))
}

func TestProcessJob_AlreadyClaimed(t *testing.T) {
	store := &mockStore{}
	broker := &mockBroker{}
	w := newTestWorker(store, broker)

	store.On("ClaimJob", mock.Anything, testJobKey, w.ID()).Return(domain.ErrJobAlreadyClaimed)

	err := w.processJob(context.Background(), jobMessage(echoJobType, 3))
	assert.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	assert.False(t, w.shouldRequeueJob(err))
	broker.AssertNotCalled(t, "PublishWithRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessJob_ClaimErrorIsRetryable(t *testing.T) {
	store := &mockStore{}
	broker := &mockBroker{}
	w := newTestWorker(store, broker)

	store.On("ClaimJob", mock.Anything, testJobKey, w.ID()).Return(errors.New("connection refused"))

	err := w.processJob(context.Background(), jobMessage(echoJobType, 3))
	assert.True(t, w.shouldRequeueJob(err))
}

func TestShouldRequeueJob(t *testing.T) {
	w := newTestWorker(&mockStore{}, &mockBroker{})

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "already claimed", err: domain.ErrJobAlreadyClaimed, want: false},
		{name: "retryable", err: domain.NewRetryableError(errors.New("timeout")), want: true},
		{name: "wrapped retryable", err: errors.Join(errors.New("x"), domain.NewRetryableError(errors.New("timeout"))), want: true},
		{name: "unknown", err: errors.New("marshal failed"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldRequeueJob(tt.err))
		})
	}
}

func TestWorker_Start(t *testing.T) {
	store := &mockStore{}
	broker := &mockBroker{}
	w := newTestWorker(store, broker)
	ack := newAcknowledger()

	deliveries := make(chan amqp.Delivery, 2)
	broker.On("Consume", testJobsQueue, mock.Anything).Return((<-chan amqp.Delivery)(deliveries), nil)
	store.On("ClaimJob", mock.Anything, testJobKey, w.ID()).Return(nil)
	store.On("RecordOutcome", mock.Anything, mock.Anything).Return(nil)
	capturePublished(broker, nil)

	valid, err := json.Marshal(jobMessage(echoJobType, 3).Job)
	require.NoError(t, err)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: valid}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`{"job_key":"not-a-uuid"}`)}
	close(deliveries)

	require.NoError(t, w.Start(context.Background()))

	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, []uint64{1}, ack.acked)
	requeue, nacked := ack.nacked[2]
	assert.True(t, nacked)
	assert.False(t, requeue)
}

func TestWorker_StartConsumeError(t *testing.T) {
	broker := &mockBroker{}
	w := newTestWorker(&mockStore{}, broker)
	broker.On("Consume", testJobsQueue, mock.Anything).Return(nil, errors.New("not connected"))

	assert.Error(t, w.Start(context.Background()))
}

func TestWorker_ShutdownRequeuesBufferedJobs(t *testing.T) {
	store := &mockStore{}
	broker := &mockBroker{}
	w := newTestWorker(store, broker)
	ack := newAcknowledger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w.jobsChan = make(chan *domain.JobMessage, 1)
	w.jobsChan <- &domain.JobMessage{
		Job:      jobMessage(echoJobType, 3).Job,
		Delivery: amqp.Delivery{Acknowledger: ack, DeliveryTag: 7},
	}
	close(w.jobsChan)
	w.wg.Add(1)
	w.workerLoop(ctx, 0)

	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.Equal(t, map[uint64]bool{7: true}, ack.nacked)
	store.AssertNotCalled(t, "ClaimJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(&connector.HandlerConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	registry.Register("b", connector.FunctionFunc(func(context.Context, *connector.ExecutionContext) (any, error) { return nil, nil }))
	registry.Register("a", connector.FunctionFunc(func(context.Context, *connector.ExecutionContext) (any, error) { return nil, nil }))

	assert.Equal(t, []string{"a", "b"}, registry.Types())
	assert.NotSame(t, registry.Lookup("a"), registry.Lookup("b"))
	assert.Same(t, registry.Lookup("missing"), registry.Lookup("other"))
}
