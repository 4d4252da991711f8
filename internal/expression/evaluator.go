// Package expression evaluates the result and error expressions a job carries in its headers.
package expression

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sosodev/duration"
)

const (
	errorTypeBusiness = "bpmnError"
	errorTypeJob      = "jobError"
)

// ErrNotAContext is returned when an expression must produce a map but did not
var ErrNotAContext = errors.New("expression did not produce a context")

// Evaluator implements connector.ResultEvaluator and connector.ErrorPredicate
type Evaluator struct {
	programs sync.Map // expression source -> *vm.Program
}

// NewEvaluator creates an Evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate maps a response to output variables.
// resultVariable stores the whole response under one name; resultExpression must yield a map whose entries are merged in.
func (e *Evaluator) Evaluate(response any, headers map[string]string) (map[string]any, error) {
	variables := make(map[string]any)

	resultVariable := strings.TrimSpace(headers[connector.HeaderResultVariable])
	resultExpression := strings.TrimSpace(headers[connector.HeaderResultExpression])
	if resultVariable == "" && resultExpression == "" {
		return variables, nil
	}

	normalized, err := normalize(response)
	if err != nil {
		return nil, err
	}

	if resultVariable != "" {
		variables[resultVariable] = normalized
	}

	if resultExpression != "" {
		out, err := e.run(resultExpression, responseEnv(normalized))
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate result expression: %w", err)
		}
		if out == nil {
			return variables, nil
		}
		mapped, ok := out.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: result expression produced %T", ErrNotAContext, out)
		}
		maps.Copy(variables, mapped)
	}

	return variables, nil
}

// Examine evaluates the errorExpression header against a successful response
func (e *Evaluator) Examine(response any, headers map[string]string, job *connector.Job) (connector.ErrorSignal, error) {
	errorExpression := strings.TrimSpace(headers[connector.HeaderErrorExpression])
	if errorExpression == "" {
		return nil, nil
	}

	normalized, err := normalize(response)
	if err != nil {
		return nil, err
	}

	env := responseEnv(normalized)
	env["job"] = map[string]any{"retries": job.Retries, "key": job.Key, "type": job.Type}

	out, err := e.run(errorExpression, env)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate error expression: %w", err)
	}
	return toSignal(out)
}

func (e *Evaluator) run(source string, env map[string]any) (any, error) {
	program, err := e.compile(source)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

func (e *Evaluator) compile(source string) (*vm.Program, error) {
	if cached, ok := e.programs.Load(source); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(source,
		expr.Function(errorTypeBusiness, bpmnErrorFunc),
		expr.Function(errorTypeJob, jobErrorFunc),
	)
	if err != nil {
		return nil, err
	}
	e.programs.Store(source, program)
	return program, nil
}

// normalize turns any response into plain JSON-shaped values
func normalize(response any) (any, error) {
	if response == nil {
		return nil, nil
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize response: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to deserialize response: %w", err)
	}
	return out, nil
}

// responseEnv exposes the response as "response" and, for maps, each top-level key
func responseEnv(response any) map[string]any {
	env := make(map[string]any)
	if m, ok := response.(map[string]any); ok {
		maps.Copy(env, m)
	}
	env["response"] = response
	return env
}

func toSignal(out any) (connector.ErrorSignal, error) {
	if out == nil {
		return nil, nil
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: error expression produced %T", ErrNotAContext, out)
	}
	if len(m) == 0 {
		return nil, nil
	}

	errorType, _ := m["errorType"].(string)
	message, _ := m["message"].(string)
	variables, _ := m["variables"].(map[string]any)

	switch errorType {
	case errorTypeJob:
		// omitted retries stop the job; omitted backoff means no delay
		var retries int
		var backoff time.Duration
		if v, ok := m["retries"]; ok && v != nil {
			n, err := toInt(v)
			if err != nil {
				return nil, fmt.Errorf("invalid jobError retries: %w", err)
			}
			retries = n
		}
		if v, ok := m["retryBackoff"]; ok && v != nil {
			d, err := toDuration(v)
			if err != nil {
				return nil, fmt.Errorf("invalid jobError retryBackoff: %w", err)
			}
			backoff = d
		}
		return connector.JobError{
			Message:   message,
			Variables: variables,
			Retries:   &retries,
			Backoff:   &backoff,
		}, nil

	case errorTypeBusiness, "":
		code, _ := m["code"].(string)
		if code == "" {
			return nil, errors.New("business error requires a non-empty code")
		}
		return connector.BusinessError{Code: code, Message: message, Variables: variables}, nil
	}

	return nil, fmt.Errorf("unknown errorType %q", errorType)
}

// bpmnError(code, message[, variables])
func bpmnErrorFunc(params ...any) (any, error) {
	if len(params) < 2 || len(params) > 3 {
		return nil, fmt.Errorf("function 'bpmnError' expects 2 or 3 arguments, got %d", len(params))
	}
	code, ok := params[0].(string)
	if !ok {
		return nil, errors.New("Parameter 'code' of function 'bpmnError' must be a String")
	}
	message, ok := params[1].(string)
	if !ok {
		return nil, errors.New("Parameter 'message' of function 'bpmnError' must be a String")
	}
	out := map[string]any{"errorType": errorTypeBusiness, "code": code, "message": message}
	if len(params) == 3 && params[2] != nil {
		variables, ok := params[2].(map[string]any)
		if !ok {
			return nil, errors.New("Parameter 'variables' of function 'bpmnError' must be a context")
		}
		out["variables"] = variables
	}
	return out, nil
}

// jobError(message[, variables[, retries[, retryBackoff]]])
func jobErrorFunc(params ...any) (any, error) {
	if len(params) < 1 || len(params) > 4 {
		return nil, fmt.Errorf("function 'jobError' expects 1 to 4 arguments, got %d", len(params))
	}
	message, ok := params[0].(string)
	if !ok {
		return nil, errors.New("Parameter 'message' of function 'jobError' must be a String")
	}
	out := map[string]any{"errorType": errorTypeJob, "message": message}
	if len(params) > 1 && params[1] != nil {
		variables, ok := params[1].(map[string]any)
		if !ok {
			return nil, errors.New("Parameter 'variables' of function 'jobError' must be a context")
		}
		out["variables"] = variables
	}
	if len(params) > 2 {
		out["retries"] = params[2]
	}
	if len(params) > 3 {
		out["retryBackoff"] = params[3]
	}
	return out, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toDuration(v any) (time.Duration, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected an ISO-8601 duration string, got %T", v)
	}
	parsed, err := duration.Parse(s)
	if err != nil {
		return 0, err
	}
	return parsed.ToTimeDuration(), nil
}
