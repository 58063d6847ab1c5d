package microservices

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/velodrop/courier-dispatch-system/config"
	"github.com/velodrop/courier-dispatch-system/internal/adapter/redisstore"
	"github.com/velodrop/courier-dispatch-system/internal/service/traffic"
)

const storeRedis = "redis"

// newTrafficStore picks the fix/cell store backend. Redis lets the traffic
// and dispatch services share one live traffic picture; memory keeps
// single-node deployments dependency-free.
func newTrafficStore(ctx context.Context, cfg config.Config) (traffic.Store, *redis.Client, error) {
	if cfg.Traffic.Store != storeRedis {
		return traffic.NewMemoryStore(cfg.Traffic.FixTTL, cfg.Traffic.CellTTL), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return redisstore.NewTrafficStore(client, cfg.Traffic.FixTTL, cfg.Traffic.CellTTL), client, nil
}
