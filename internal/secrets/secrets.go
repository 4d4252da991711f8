// Package secrets resolves connector secrets from the environment, PostgreSQL and Redis.
package secrets

import (
	"context"

	"github.com/cuongbtq/connector-worker/internal/connector"
)

// DefaultTenant is used when a job carries no tenant id
const DefaultTenant = "<default>"

func tenantOf(scope connector.SecretScope) string {
	if scope.TenantID == "" {
		return DefaultTenant
	}
	return scope.TenantID
}

type getter interface {
	GetSecret(ctx context.Context, name string, scope connector.SecretScope) (string, bool, error)
}

// fetchEach looks names up one at a time, skipping unknown names
func fetchEach(ctx context.Context, g getter, names []string, scope connector.SecretScope) ([]string, error) {
	values := make([]string, 0, len(names))
	for _, name := range names {
		value, ok, err := g.GetSecret(ctx, name, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			values = append(values, value)
		}
	}
	return values, nil
}
