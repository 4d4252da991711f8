package secrets

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"go.uber.org/multierr"
)

// Aggregator asks each provider in order; the first one holding a name wins
type Aggregator struct {
	providers []connector.SecretProvider
	logger    *slog.Logger
}

// NewAggregator creates a new Aggregator
func NewAggregator(logger *slog.Logger, providers ...connector.SecretProvider) *Aggregator {
	return &Aggregator{providers: providers, logger: logger}
}

// GetSecret returns the first hit. Provider errors are only reported when no provider has the name.
func (a *Aggregator) GetSecret(ctx context.Context, name string, scope connector.SecretScope) (string, bool, error) {
	var errs error
	for _, p := range a.providers {
		value, ok, err := p.GetSecret(ctx, name, scope)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			if errs != nil {
				a.logger.Warn("Secret resolved after provider errors",
					slog.String("secret", name),
					slog.String("tenant_id", scope.TenantID),
					slog.Any("error", errs),
				)
			}
			return value, true, nil
		}
	}
	return "", false, errs
}

func (a *Aggregator) FetchAll(ctx context.Context, names []string, scope connector.SecretScope) ([]string, error) {
	return fetchEach(ctx, a, names, scope)
}
