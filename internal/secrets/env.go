package secrets

import (
	"context"
	"os"

	"github.com/cuongbtq/connector-worker/internal/connector"
)

// EnvProvider reads secrets from environment variables named Prefix+name.
// It is shared by all tenants.
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider creates a new EnvProvider
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

func (p *EnvProvider) GetSecret(_ context.Context, name string, _ connector.SecretScope) (string, bool, error) {
	value, ok := os.LookupEnv(p.Prefix + name)
	return value, ok, nil
}

func (p *EnvProvider) FetchAll(ctx context.Context, names []string, scope connector.SecretScope) ([]string, error) {
	return fetchEach(ctx, p, names, scope)
}
