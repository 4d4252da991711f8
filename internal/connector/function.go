package connector

import (
	"context"
	"time"
)

// Function is a user-supplied unit of work invoked for each job of its type
type Function interface {
	Execute(ctx context.Context, execCtx *ExecutionContext) (any, error)
}

// FunctionFunc adapts a plain function to Function
type FunctionFunc func(ctx context.Context, execCtx *ExecutionContext) (any, error)

func (f FunctionFunc) Execute(ctx context.Context, execCtx *ExecutionContext) (any, error) {
	return f(ctx, execCtx)
}

// ResultEvaluator derives output variables from a function's response
type ResultEvaluator interface {
	Evaluate(response any, headers map[string]string) (map[string]any, error)
}

// ErrorPredicate decides whether a successful response expresses an error condition.
// A nil ErrorSignal means the job completes normally.
type ErrorPredicate interface {
	Examine(response any, headers map[string]string, job *Job) (ErrorSignal, error)
}

// ErrorSignal is either a BusinessError or a JobError
type ErrorSignal interface {
	isErrorSignal()
}

// BusinessError throws a named error the process can branch on
type BusinessError struct {
	Code      string
	Message   string
	Variables map[string]any
}

// JobError fails the job with explicit retry settings
type JobError struct {
	Message   string
	Variables map[string]any
	Retries   *int
	Backoff   *time.Duration
}

func (BusinessError) isErrorSignal() {}
func (JobError) isErrorSignal()      {}

type noopEvaluator struct{}

func (noopEvaluator) Evaluate(any, map[string]string) (map[string]any, error) {
	return map[string]any{}, nil
}

type noopPredicate struct{}

func (noopPredicate) Examine(any, map[string]string, *Job) (ErrorSignal, error) {
	return nil, nil
}
