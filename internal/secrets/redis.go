package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuongbtq/connector-worker/internal/connector"
	r "github.com/redis/go-redis/v9"
)

// RedisProvider reads secrets from the hash "secrets:<tenant>"
type RedisProvider struct {
	rdb *r.Client
}

// NewRedisProvider creates a new RedisProvider
func NewRedisProvider(rdb *r.Client) *RedisProvider {
	return &RedisProvider{rdb: rdb}
}

func redisKey(scope connector.SecretScope) string {
	return "secrets:" + tenantOf(scope)
}

func (p *RedisProvider) GetSecret(ctx context.Context, name string, scope connector.SecretScope) (string, bool, error) {
	value, err := p.rdb.HGet(ctx, redisKey(scope), name).Result()
	if err != nil {
		if errors.Is(err, r.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get secret: %w", err)
	}
	return value, true, nil
}

func (p *RedisProvider) FetchAll(ctx context.Context, names []string, scope connector.SecretScope) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}

	res, err := p.rdb.HMGet(ctx, redisKey(scope), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secrets: %w", err)
	}

	values := make([]string, 0, len(res))
	for _, v := range res {
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	return values, nil
}
