package secrets

import (
	"context"
	"testing"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("CONNECTOR_SECRET_TOKEN", "env-token")
	t.Setenv("CONNECTOR_SECRET_EMPTY", "")

	p := NewEnvProvider("CONNECTOR_SECRET_")
	scope := connector.SecretScope{TenantID: "acme"}

	value, ok, err := p.GetSecret(context.Background(), "TOKEN", scope)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "env-token", value)

	value, ok, err = p.GetSecret(context.Background(), "EMPTY", scope)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, value)

	_, ok, err = p.GetSecret(context.Background(), "MISSING", scope)
	require.NoError(t, err)
	assert.False(t, ok)

	values, err := p.FetchAll(context.Background(), []string{"TOKEN", "MISSING"}, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-token"}, values)
}
