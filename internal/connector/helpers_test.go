package connector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mapSecrets is an in-memory SecretProvider
type mapSecrets map[string]string

func (m mapSecrets) GetSecret(_ context.Context, name string, _ SecretScope) (string, bool, error) {
	v, ok := m[name]
	return v, ok, nil
}

func (m mapSecrets) FetchAll(_ context.Context, names []string, _ SecretScope) ([]string, error) {
	var out []string
	for _, name := range names {
		if v, ok := m[name]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// brokenFetch resolves secrets for input but cannot list them for redaction
type brokenFetch struct {
	mapSecrets
}

func (brokenFetch) FetchAll(context.Context, []string, SecretScope) ([]string, error) {
	return nil, errors.New("secret store unavailable")
}

// panickingSecrets panics on every lookup
type panickingSecrets struct{}

func (panickingSecrets) GetSecret(context.Context, string, SecretScope) (string, bool, error) {
	panic("secret backend crashed")
}

func (panickingSecrets) FetchAll(context.Context, []string, SecretScope) ([]string, error) {
	panic("secret backend crashed")
}

// panickingFetch resolves secrets for input but panics when listing them for redaction
type panickingFetch struct {
	mapSecrets
}

func (panickingFetch) FetchAll(context.Context, []string, SecretScope) ([]string, error) {
	panic("secret backend crashed")
}

type recordingClient struct {
	mu        sync.Mutex
	completes []map[string]any
	fails     []FailCommand
	throws    []ThrowErrorCommand
	err       error
}

func (c *recordingClient) Complete(_ context.Context, _ *Job, variables map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completes = append(c.completes, variables)
	return c.err
}

func (c *recordingClient) Fail(_ context.Context, _ *Job, cmd FailCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fails = append(c.fails, cmd)
	return c.err
}

func (c *recordingClient) ThrowError(_ context.Context, _ *Job, cmd ThrowErrorCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.throws = append(c.throws, cmd)
	return c.err
}

func (c *recordingClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.completes) + len(c.fails) + len(c.throws)
}

type evaluatorFunc func(response any, headers map[string]string) (map[string]any, error)

func (f evaluatorFunc) Evaluate(response any, headers map[string]string) (map[string]any, error) {
	return f(response, headers)
}

type predicateFunc func(response any, headers map[string]string, job *Job) (ErrorSignal, error)

func (f predicateFunc) Examine(response any, headers map[string]string, job *Job) (ErrorSignal, error) {
	return f(response, headers, job)
}

// passthrough returns map responses as output variables
var passthrough = evaluatorFunc(func(response any, _ map[string]string) (map[string]any, error) {
	if m, ok := response.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{}, nil
})
