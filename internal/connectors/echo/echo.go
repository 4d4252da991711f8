// Package echo is a sample connector that returns its validated input.
package echo

import (
	"context"
	"strings"
	"time"

	"github.com/cuongbtq/connector-worker/internal/connector"
)

// JobType is the job type this connector is registered under
const JobType = "io.connectors:echo:1"

// Input is the job input the echo connector accepts
type Input struct {
	Message   string `json:"message" validate:"required,max=1024"`
	Uppercase bool   `json:"uppercase"`
	// FailWith makes the connector return a business error with this code
	FailWith string `json:"failWith" validate:"omitempty,alphanum"`
	// Token is typically a {{secrets.X}} reference
	Token string `json:"token,omitempty"`
}

// Response is returned to the result expression
type Response struct {
	Message    string    `json:"message"`
	Authorized bool      `json:"authorized"`
	EchoedAt   time.Time `json:"echoedAt"`
}

// Function implements connector.Function
type Function struct {
	now func() time.Time
}

// New creates the echo connector
func New() *Function {
	return &Function{now: time.Now}
}

func (f *Function) Execute(ctx context.Context, execCtx *connector.ExecutionContext) (any, error) {
	var input Input
	if err := execCtx.BindVariables(&input); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if input.FailWith != "" {
		return nil, execCtx.NewError(input.FailWith, "echo asked to fail: "+input.Message, nil)
	}

	message := input.Message
	if input.Uppercase {
		message = strings.ToUpper(message)
	}
	return &Response{
		Message:    message,
		Authorized: input.Token != "",
		EchoedAt:   f.now().UTC(),
	}, nil
}
