package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisFetcher reads entities from a Redis directory mirror. Each entity is
// a JSON document at {key_prefix}{key}.
type RedisFetcher struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisFetcher creates a Redis-backed entity fetcher.
func NewRedisFetcher(cfg config.RedisConfig, logger *zap.Logger) *RedisFetcher {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisFetcher{
		client: client,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}
}

func (f *RedisFetcher) Fetch(ctx context.Context, key types.Key) (types.Entity, error) {
	data, err := f.client.Get(ctx, f.prefix+string(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Entity{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return types.Entity{}, fmt.Errorf("redis get for %s: %w", key, err)
	}

	var entity types.Entity
	if err := json.Unmarshal([]byte(data), &entity); err != nil {
		return types.Entity{}, fmt.Errorf("decoding entity for %s: %w", key, err)
	}

	f.logger.Debug("entity fetched",
		zap.String("key", string(key)),
		zap.String("entity_id", entity.ID),
	)
	return entity, nil
}

// Ping probes the Redis connection, for readiness checks.
func (f *RedisFetcher) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (f *RedisFetcher) Close() error {
	return f.client.Close()
}
