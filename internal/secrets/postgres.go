package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cuongbtq/connector-worker/internal/connector"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresProvider reads secrets from the connector_secrets table
type PostgresProvider struct {
	db *sqlx.DB
}

// NewPostgresProvider creates a new PostgresProvider
func NewPostgresProvider(db *sqlx.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) GetSecret(ctx context.Context, name string, scope connector.SecretScope) (string, bool, error) {
	query := `
		SELECT value
		FROM connector_secrets
		WHERE tenant_id = $1 AND name = $2
	`

	var value string
	err := p.db.GetContext(ctx, &value, query, tenantOf(scope), name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get secret: %w", err)
	}
	return value, true, nil
}

type secretRow struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

// FetchAll loads every named secret of the tenant in one query
func (p *PostgresProvider) FetchAll(ctx context.Context, names []string, scope connector.SecretScope) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query := `
		SELECT name, value
		FROM connector_secrets
		WHERE tenant_id = $1 AND name = ANY($2)
	`

	var rows []secretRow
	if err := p.db.SelectContext(ctx, &rows, query, tenantOf(scope), pq.Array(names)); err != nil {
		return nil, fmt.Errorf("failed to fetch secrets: %w", err)
	}

	byName := make(map[string]string, len(rows))
	for _, row := range rows {
		byName[row.Name] = row.Value
	}

	values := make([]string, 0, len(rows))
	for _, name := range names {
		if value, ok := byName[name]; ok {
			values = append(values, value)
		}
	}
	return values, nil
}
