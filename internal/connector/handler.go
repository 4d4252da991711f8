package connector

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/go-playground/validator/v10"
)

// State is a step of one job delivery
type State string

const (
	StateReceived       State = "RECEIVED"
	StateExecuting      State = "EXECUTING"
	StateSucceeded      State = "SUCCEEDED"
	StateFailed         State = "FAILED"
	StateCompleted      State = "COMPLETED"
	StateBusinessError  State = "BUSINESS_ERROR"
	StateRetryScheduled State = "RETRY_SCHEDULED"
)

// withheldMessage replaces error text when the secrets to redact could not be looked up
const withheldMessage = "error details withheld: secrets for this job could not be resolved"

// HandlerConfig holds the collaborators of a Handler
type HandlerConfig struct {
	Logger                *slog.Logger
	Function              Function
	Secrets               SecretProvider
	Evaluator             ResultEvaluator
	Predicate             ErrorPredicate
	Validate              *validator.Validate
	DefaultBackoff        time.Duration
	MaxErrorMessageLength int
}

// Handler runs a connector function for a job and commits the outcome.
// It holds no per-job state and is safe for concurrent use.
type Handler struct {
	logger         *slog.Logger
	function       Function
	secrets        SecretProvider
	evaluator      ResultEvaluator
	predicate      ErrorPredicate
	validate       *validator.Validate
	defaultBackoff time.Duration
	maxMessageLen  int
}

// NewHandler creates a new Handler
func NewHandler(cfg *HandlerConfig) *Handler {
	h := &Handler{
		logger:         cfg.Logger,
		function:       cfg.Function,
		secrets:        cfg.Secrets,
		evaluator:      cfg.Evaluator,
		predicate:      cfg.Predicate,
		validate:       cfg.Validate,
		defaultBackoff: cfg.DefaultBackoff,
		maxMessageLen:  cfg.MaxErrorMessageLength,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.evaluator == nil {
		h.evaluator = noopEvaluator{}
	}
	if h.predicate == nil {
		h.predicate = noopPredicate{}
	}
	if h.maxMessageLen <= 0 {
		h.maxMessageLen = DefaultMaxErrorMessageLength
	}
	return h
}

// delivery carries the state of one Handle call
type delivery struct {
	job           *Job
	secretValues  []string
	secretsLoaded bool
	secretsOK     bool
}

// commitAction is the terminal decision for a delivery
type commitAction interface {
	state() State
}

type completeAction struct {
	variables map[string]any
}

type failAction struct {
	cmd FailCommand
}

type throwAction struct {
	cmd ThrowErrorCommand
}

func (completeAction) state() State { return StateCompleted }
func (failAction) state() State     { return StateRetryScheduled }
func (throwAction) state() State    { return StateBusinessError }

// Handle executes job and sends exactly one command through client.
// Every failure is converted into a command; nothing is returned or propagated.
func (h *Handler) Handle(ctx context.Context, client JobClient, job *Job) {
	h.logger.Info("Received job",
		slog.String("job_key", job.Key),
		slog.String("job_type", job.Type),
		slog.String("tenant_id", job.TenantID),
		slog.String("state", string(StateReceived)),
	)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Recovered from panic while committing job",
				slog.String("job_key", job.Key),
				slog.Any("panic", r),
			)
		}
	}()

	d := &delivery{job: job}
	action := h.run(ctx, d)
	h.commit(ctx, client, job, action)
}

// run executes the job and decides its commit action.
// A panic outside the connector function, such as one raised by the secret provider,
// becomes a final failure so the delivery still gets its command.
func (h *Handler) run(ctx context.Context, d *delivery) (action commitAction) {
	defer func() {
		if r := recover(); r != nil {
			action = h.failFinal(ctx, d, fmt.Errorf("panic while executing job: %v", r))
		}
	}()

	outcome, backoff := h.execute(ctx, d)
	return h.decide(ctx, d, outcome, backoff)
}

// execute invokes the connector function and captures its outcome
func (h *Handler) execute(ctx context.Context, d *delivery) (Outcome, time.Duration) {
	backoff, err := parseRetryBackoff(d.job.Header(HeaderRetryBackoff), h.defaultBackoff)
	if err != nil {
		return h.classify(ctx, d, err, 0), 0
	}

	execCtx, err := NewExecutionContext(ctx, d.job, h.secrets, h.validate)
	if err != nil {
		return h.classify(ctx, d, err, backoff), backoff
	}

	h.logger.Debug("Executing connector function",
		slog.String("job_key", d.job.Key),
		slog.String("state", string(StateExecuting)),
	)

	response, err := h.invoke(ctx, execCtx)
	if err != nil {
		return h.classify(ctx, d, err, backoff), backoff
	}
	return Success{Value: response}, backoff
}

func (h *Handler) invoke(ctx context.Context, execCtx *ExecutionContext) (response any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connector function panicked: %v", r)
		}
	}()
	if h.function == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoFunction, execCtx.JobType())
	}
	return h.function.Execute(ctx, execCtx)
}

func (h *Handler) classify(ctx context.Context, d *delivery, err error, backoff time.Duration) Failure {
	secrets, ok := h.secretsFor(ctx, d)
	failure := Classify(err, d.job, secrets, backoff)
	if !ok {
		failure = withhold(failure)
	}

	attrs := []any{
		slog.String("job_key", d.job.Key),
		slog.String("tenant_id", d.job.TenantID),
		slog.String("error_code", failure.ErrorCode),
		slog.Int("retries", failure.ResolveRetries(d.job)),
		slog.String("state", string(StateFailed)),
		slog.Any("error", err),
	}
	if kindOf(err) == kindRetry {
		h.logger.Debug("Connector requested retry", attrs...)
	} else {
		h.logger.Error("Connector function failed", attrs...)
	}
	return failure
}

func (h *Handler) classifyFinal(ctx context.Context, d *delivery, err error) Failure {
	secrets, ok := h.secretsFor(ctx, d)
	failure := ClassifyFinal(err, d.job, secrets)
	if !ok {
		failure = withhold(failure)
	}

	h.logger.Error("Failed to process connector result",
		slog.String("job_key", d.job.Key),
		slog.String("tenant_id", d.job.TenantID),
		slog.Any("error", err),
	)
	return failure
}

// secretsFor fetches the secrets referenced by the job input, once per delivery
func (h *Handler) secretsFor(ctx context.Context, d *delivery) ([]string, bool) {
	if d.secretsLoaded {
		return d.secretValues, d.secretsOK
	}

	names := SecretKeysInInput(d.job.Variables)
	if len(names) == 0 || h.secrets == nil {
		d.secretsLoaded, d.secretsOK = true, true
		return nil, true
	}

	values, err := h.fetchSecrets(ctx, names, SecretScope{TenantID: d.job.TenantID})
	d.secretsLoaded = true
	if err != nil {
		h.logger.Error("Failed to fetch secrets for redaction",
			slog.String("job_key", d.job.Key),
			slog.String("tenant_id", d.job.TenantID),
			slog.Any("error", err),
		)
		d.secretsOK = false
		return nil, false
	}
	d.secretValues, d.secretsOK = values, true
	return values, true
}

func (h *Handler) fetchSecrets(ctx context.Context, names []string, scope SecretScope) (values []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("secret provider panicked: %v", r)
		}
	}()
	return h.secrets.FetchAll(ctx, names, scope)
}

// decide turns an outcome into a commit action. Panics while post-processing become a final failure.
func (h *Handler) decide(ctx context.Context, d *delivery, outcome Outcome, backoff time.Duration) (action commitAction) {
	defer func() {
		if r := recover(); r != nil {
			action = h.failFinal(ctx, d, fmt.Errorf("panic while processing result: %v", r))
		}
	}()

	switch o := outcome.(type) {
	case Success:
		return h.decideSuccess(ctx, d, o)
	case Failure:
		return h.decideFailure(d, o, backoff)
	}
	return h.failFinal(ctx, d, fmt.Errorf("unexpected outcome %T", outcome))
}

func (h *Handler) decideSuccess(ctx context.Context, d *delivery, s Success) commitAction {
	h.logger.Debug("Connector function returned",
		slog.String("job_key", d.job.Key),
		slog.String("state", string(StateSucceeded)),
	)

	variables, err := h.evaluator.Evaluate(s.Value, d.job.CustomHeaders)
	if err != nil {
		return h.failFinal(ctx, d, fmt.Errorf("failed to evaluate result: %w", err))
	}

	signal, err := h.predicate.Examine(s.Value, d.job.CustomHeaders, d.job)
	if err != nil {
		return h.failFinal(ctx, d, fmt.Errorf("failed to evaluate error expression: %w", err))
	}

	switch sig := signal.(type) {
	case nil:
		return completeAction{variables: variables}
	case BusinessError:
		return throwAction{cmd: ThrowErrorCommand{
			ErrorCode:    sig.Code,
			ErrorMessage: h.redact(ctx, d, sig.Message),
			Variables:    sig.Variables,
		}}
	case JobError:
		// without explicit retries the job stops retrying and raises an incident
		retries := 0
		if sig.Retries != nil {
			retries = floorRetries(*sig.Retries)
		}
		var jobBackoff time.Duration
		if sig.Backoff != nil {
			jobBackoff = *sig.Backoff
		}
		message := h.redact(ctx, d, sig.Message)
		errorVars := sig.Variables
		if errorVars == nil {
			errorVars = map[string]any{"error": message}
		}
		return failAction{cmd: FailCommand{
			Retries:      retries,
			Backoff:      jobBackoff,
			ErrorMessage: message,
			Variables:    errorVars,
		}}
	}
	return h.failFinal(ctx, d, fmt.Errorf("unexpected error signal %T", signal))
}

func (h *Handler) decideFailure(d *delivery, f Failure, backoff time.Duration) commitAction {
	retries := f.ResolveRetries(d.job)
	if f.ErrorCode != "" && retries == 0 {
		return throwAction{cmd: ThrowErrorCommand{
			ErrorCode:    f.ErrorCode,
			ErrorMessage: f.Message,
			Variables:    f.Variables,
		}}
	}
	return failAction{cmd: FailCommand{
		Retries:      retries,
		Backoff:      f.ResolveBackoff(backoff),
		ErrorMessage: f.Message,
		Variables:    f.Variables,
	}}
}

func (h *Handler) failFinal(ctx context.Context, d *delivery, err error) commitAction {
	f := h.classifyFinal(ctx, d, err)
	return failAction{cmd: FailCommand{
		Retries:      0,
		ErrorMessage: f.Message,
		Variables:    f.Variables,
	}}
}

func (h *Handler) redact(ctx context.Context, d *delivery, message string) string {
	secrets, ok := h.secretsFor(ctx, d)
	if !ok {
		return withheldMessage
	}
	return Redact(message, secrets)
}

// commit sends the action. A failed send is logged and not retried here.
func (h *Handler) commit(ctx context.Context, client JobClient, job *Job, action commitAction) {
	var err error
	switch a := action.(type) {
	case completeAction:
		h.logger.Debug("Completing job",
			slog.String("job_key", job.Key),
			slog.String("tenant_id", job.TenantID),
		)
		err = client.Complete(ctx, job, a.variables)
	case failAction:
		cmd := a.cmd
		cmd.ErrorMessage = Truncate(cmd.ErrorMessage, h.maxMessageLen)
		cmd.Variables = truncateErrorVariable(cmd.Variables, h.maxMessageLen)
		h.logger.Debug("Failing job",
			slog.String("job_key", job.Key),
			slog.String("tenant_id", job.TenantID),
			slog.Int("retries", cmd.Retries),
			slog.Duration("backoff", cmd.Backoff),
		)
		err = client.Fail(ctx, job, cmd)
	case throwAction:
		cmd := a.cmd
		cmd.ErrorMessage = Truncate(cmd.ErrorMessage, h.maxMessageLen)
		cmd.Variables = truncateErrorVariable(cmd.Variables, h.maxMessageLen)
		h.logger.Debug("Throwing business error",
			slog.String("job_key", job.Key),
			slog.String("tenant_id", job.TenantID),
			slog.String("error_code", cmd.ErrorCode),
		)
		err = client.ThrowError(ctx, job, cmd)
	}

	if err != nil {
		h.logger.Error("Failed to send job command",
			slog.String("job_key", job.Key),
			slog.String("state", string(action.state())),
			slog.Any("error", err),
		)
		return
	}

	h.logger.Info("Job committed",
		slog.String("job_key", job.Key),
		slog.String("job_type", job.Type),
		slog.String("state", string(action.state())),
	)
}

// withhold strips the message from a failure whose secrets could not be looked up
func withhold(f Failure) Failure {
	f.Message = withheldMessage
	if detail, ok := f.Variables["error"].(map[string]any); ok {
		detail = maps.Clone(detail)
		detail["message"] = withheldMessage
		f.Variables = map[string]any{"error": detail}
	}
	return f
}

// truncateErrorVariable bounds the message inside the "error" variable the same way as the command message
func truncateErrorVariable(variables map[string]any, limit int) map[string]any {
	detail, ok := variables["error"].(map[string]any)
	if !ok {
		return variables
	}
	message, ok := detail["message"].(string)
	if !ok || Truncate(message, limit) == message {
		return variables
	}
	detail = maps.Clone(detail)
	detail["message"] = Truncate(message, limit)
	out := maps.Clone(variables)
	out["error"] = detail
	return out
}
