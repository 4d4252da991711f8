package connector

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_GenericError(t *testing.T) {
	tests := []struct {
		name            string
		remaining       int
		expectedRetries int
	}{
		{name: "decrements budget", remaining: 3, expectedRetries: 2},
		{name: "last retry", remaining: 1, expectedRetries: 0},
		{name: "floors at zero", remaining: 0, expectedRetries: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Key: "1", Retries: tt.remaining}
			f := Classify(errors.New("boom"), job, nil, 5*time.Second)

			require.NotNil(t, f.Retries)
			assert.Equal(t, tt.expectedRetries, *f.Retries)
			assert.Equal(t, tt.expectedRetries, f.ResolveRetries(job))
			assert.Equal(t, tt.expectedRetries > 0, f.Retryable)
			assert.Equal(t, "boom", f.Message)
			assert.Empty(t, f.ErrorCode)
			assert.Equal(t, 5*time.Second, f.ResolveBackoff(0))
		})
	}
}

func TestClassify_InputErrorNeverRetried(t *testing.T) {
	for _, remaining := range []int{0, 1, 3, 100} {
		job := &Job{Retries: remaining}

		direct := Classify(NewInputError(errors.New("url is required")), job, nil, 0)
		assert.Equal(t, 0, *direct.Retries)

		wrapped := Classify(fmt.Errorf("binding failed: %w", NewInputError(errors.New("bad"))), job, nil, 0)
		assert.Equal(t, 0, *wrapped.Retries)
		assert.False(t, wrapped.Retryable)
	}
}

func TestClassify_StructuredErrorCarriesCode(t *testing.T) {
	job := &Job{Retries: 3}
	err := &Error{Code: "NOT_FOUND", Message: "record missing", Variables: map[string]any{"id": 7}}

	f := Classify(err, job, nil, 0)

	assert.Equal(t, "NOT_FOUND", f.ErrorCode)
	assert.Equal(t, 2, *f.Retries)
	detail := f.Variables["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", detail["code"])
	assert.Equal(t, map[string]any{"id": 7}, detail["variables"])
	assert.Equal(t, "record missing", detail["message"])
}

func TestClassify_RetryDirective(t *testing.T) {
	t.Run("explicit values honored", func(t *testing.T) {
		job := &Job{Retries: 3}
		err := NewRetryError("rate limited", WithRetries(4), WithBackoff(10*time.Second), WithCode("RATE"))

		f := Classify(err, job, nil, time.Second)

		assert.Equal(t, 4, *f.Retries)
		assert.Equal(t, 10*time.Second, *f.Backoff)
		assert.Equal(t, "RATE", f.ErrorCode)
		assert.Equal(t, "rate limited", f.Message)
		assert.True(t, f.Retryable)
	})

	t.Run("defaults from job and config", func(t *testing.T) {
		job := &Job{Retries: 3}

		f := Classify(NewRetryError("try again"), job, nil, 30*time.Second)

		assert.Equal(t, 2, *f.Retries)
		assert.Equal(t, 30*time.Second, *f.Backoff)
		assert.Empty(t, f.ErrorCode)
	})

	t.Run("negative explicit retries floored", func(t *testing.T) {
		f := Classify(NewRetryError("x", WithRetries(-2)), &Job{Retries: 3}, nil, 0)
		assert.Equal(t, 0, *f.Retries)
	})

	t.Run("wrapped directive", func(t *testing.T) {
		err := fmt.Errorf("call failed: %w", NewRetryError("later", WithRetries(9)))
		f := Classify(err, &Job{Retries: 1}, nil, 0)
		assert.Equal(t, 9, *f.Retries)
	})
}

func TestClassify_InvalidBackoff(t *testing.T) {
	_, err := parseRetryBackoff("soon", 0)
	require.Error(t, err)

	f := Classify(err, &Job{Retries: 5}, []string{"soon"}, time.Minute)

	assert.Equal(t, 0, *f.Retries)
	assert.Nil(t, f.Backoff)
	assert.Empty(t, f.ErrorCode)
	assert.False(t, f.Retryable)
	assert.Contains(t, f.Message, "Failed to parse retry backoff header")
	assert.NotContains(t, f.Message, "soon")
}

func TestClassify_RedactsAllPaths(t *testing.T) {
	secrets := []string{"hunter2"}
	job := &Job{Retries: 2}
	errs := []error{
		errors.New("login hunter2 rejected"),
		NewRetryError("login hunter2 rejected"),
		&Error{Code: "AUTH", Message: "login hunter2 rejected"},
		&InvalidBackoffError{Value: "hunter2"},
	}

	for _, err := range errs {
		f := Classify(err, job, secrets, 0)
		assert.NotContains(t, f.Message, "hunter2")
		detail := f.Variables["error"].(map[string]any)
		assert.NotContains(t, detail["message"], "hunter2")
	}

	final := ClassifyFinal(errors.New("mapping hunter2 failed"), job, secrets)
	assert.Equal(t, "mapping *** failed", final.Message)
}

func TestClassify_Idempotent(t *testing.T) {
	job := &Job{Key: "42", Retries: 3}
	errs := []error{
		errors.New("boom"),
		NewRetryError("again", WithRetries(1), WithCode("E")),
		NewInputError(errors.New("bad input")),
	}

	for _, err := range errs {
		first := Classify(err, job, []string{"x"}, time.Second)
		second := Classify(err, job, []string{"x"}, time.Second)
		assert.Equal(t, first, second)
	}
	assert.Equal(t, 3, job.Retries)
}

func TestClassifyFinal_AlwaysZeroRetries(t *testing.T) {
	for _, remaining := range []int{0, 3, 10} {
		f := ClassifyFinal(context.DeadlineExceeded, &Job{Retries: remaining}, nil)
		assert.Equal(t, 0, f.ResolveRetries(&Job{Retries: remaining}))
		assert.Empty(t, f.ErrorCode)
	}
}

func TestFailure_ResolveDefaults(t *testing.T) {
	f := Failure{}
	assert.Equal(t, 4, f.ResolveRetries(&Job{Retries: 5}))
	assert.Equal(t, 0, f.ResolveRetries(&Job{Retries: 0}))
	assert.Equal(t, time.Minute, f.ResolveBackoff(time.Minute))
}
