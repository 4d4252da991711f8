package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"
)

// ExecutionContext is what a connector function sees of its job.
// It is built for a single delivery and never shared.
type ExecutionContext struct {
	job       Job
	variables string
	validate  *validator.Validate
}

// NewExecutionContext resolves secret references in the job input and wraps the job.
// validate may be nil, in which case bound input is only decoded.
func NewExecutionContext(ctx context.Context, job *Job, secrets SecretProvider, validate *validator.Validate) (*ExecutionContext, error) {
	variables, err := replaceSecrets(ctx, job.Variables, secrets, SecretScope{TenantID: job.TenantID})
	if err != nil {
		return nil, err
	}

	snapshot := *job
	snapshot.CustomHeaders = maps.Clone(job.CustomHeaders)

	return &ExecutionContext{
		job:       snapshot,
		variables: variables,
		validate:  validate,
	}, nil
}

// JobKey identifies the job and correlates errors raised from this context
func (c *ExecutionContext) JobKey() string {
	return c.job.Key
}

// JobType returns the job type
func (c *ExecutionContext) JobType() string {
	return c.job.Type
}

// TenantID returns the tenant the job belongs to
func (c *ExecutionContext) TenantID() string {
	return c.job.TenantID
}

// Headers returns a copy of the job's custom headers
func (c *ExecutionContext) Headers() map[string]string {
	return maps.Clone(c.job.CustomHeaders)
}

// Variables returns the job input with secret references resolved
func (c *ExecutionContext) Variables() string {
	return c.variables
}

// BindVariables decodes the job input into target and validates it.
// Any decoding or validation failure is an InputError.
func (c *ExecutionContext) BindVariables(target any) error {
	if c.variables == "" {
		return NewInputError(errors.New("job has no input variables"))
	}
	if err := json.Unmarshal([]byte(c.variables), target); err != nil {
		return NewInputError(fmt.Errorf("failed to decode input: %w", err))
	}
	if c.validate == nil {
		return nil
	}
	if err := c.validate.Struct(target); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// target is not a struct; nothing to validate
			return nil
		}
		return NewInputError(err)
	}
	return nil
}

// NewError creates a business error correlated with this job
func (c *ExecutionContext) NewError(code, message string, variables map[string]any) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Variables: withJobKey(variables, c.job.Key),
	}
}

func withJobKey(variables map[string]any, key string) map[string]any {
	out := maps.Clone(variables)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out["jobKey"] = key
	return out
}
