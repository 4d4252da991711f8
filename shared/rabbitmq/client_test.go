package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// closedPort returns a local port nothing is listening on
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(&Config{
		Host:          "127.0.0.1",
		Port:          closedPort(t),
		User:          "guest",
		Password:      "guest",
		VHost:         "/",
		RetryAttempts: 2,
		RetryInterval: time.Millisecond,
	}, discardLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{config: &Config{ExchangeName: "connector_exchange"}, logger: discardLogger()}
	ctx := context.Background()

	assert.ErrorIs(t, c.Publish(ctx, "jobs.commands", []byte(`{}`), "application/json"), ErrNotConnected)
	assert.ErrorIs(t, c.PublishWithRetry(ctx, "jobs.commands", []byte(`{}`), "application/json"), ErrNotConnected)

	_, err := c.Consume("connector_jobs", "worker-1")
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Close())
}
