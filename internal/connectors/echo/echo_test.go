package echo

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secrets map[string]string

func (s secrets) GetSecret(_ context.Context, name string, _ connector.SecretScope) (string, bool, error) {
	v, ok := s[name]
	return v, ok, nil
}

func (s secrets) FetchAll(_ context.Context, names []string, _ connector.SecretScope) ([]string, error) {
	var out []string
	for _, name := range names {
		if v, ok := s[name]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func TestExecute(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		variables string
		want      *Response
		wantCode  string
		wantInput bool
	}{
		{
			name:      "echoes message",
			variables: `{"message":"hello"}`,
			want:      &Response{Message: "hello", EchoedAt: fixed},
		},
		{
			name:      "uppercases",
			variables: `{"message":"hello","uppercase":true}`,
			want:      &Response{Message: "HELLO", EchoedAt: fixed},
		},
		{
			name:      "resolves secret token",
			variables: `{"message":"hello","token":"{{secrets.API_TOKEN}}"}`,
			want:      &Response{Message: "hello", Authorized: true, EchoedAt: fixed},
		},
		{
			name:      "business error",
			variables: `{"message":"hello","failWith":"ECHO42"}`,
			wantCode:  "ECHO42",
		},
		{
			name:      "missing message is an input error",
			variables: `{"uppercase":true}`,
			wantInput: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &connector.Job{Key: "1", Type: JobType, Retries: 3, Variables: tt.variables}
			execCtx, err := connector.NewExecutionContext(context.Background(), job, secrets{"API_TOKEN": "s3cr3t"}, validator.New())
			require.NoError(t, err)

			fn := &Function{now: func() time.Time { return fixed }}
			got, err := fn.Execute(context.Background(), execCtx)

			switch {
			case tt.wantInput:
				require.Error(t, err)
				assert.True(t, connector.IsInputError(err))
			case tt.wantCode != "":
				var cErr *connector.Error
				require.ErrorAs(t, err, &cErr)
				assert.Equal(t, tt.wantCode, cErr.Code)
				assert.Equal(t, "1", cErr.Variables["jobKey"])
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	job := &connector.Job{Key: "1", Type: JobType, Variables: `{"message":"hello"}`}
	execCtx, err := connector.NewExecutionContext(context.Background(), job, nil, validator.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = New().Execute(ctx, execCtx)
	assert.ErrorIs(t, err, context.Canceled)
}
