package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgreDB struct {
	Pool     *pgxpool.Pool
	DBConfig *pgxpool.Config
}

type Config interface {
	GetDSN() string
}

// PoolTuner is optionally implemented by configs that carry pool limits.
type PoolTuner interface {
	PoolLimits() (maxConns, minConns int32, maxConnLifetime, maxConnIdleTime time.Duration)
}

func New(ctx context.Context, config Config) (*PostgreDB, error) {
	dbConfig, err := pgxpool.ParseConfig(config.GetDSN())
	if err != nil {
		return nil, err
	}

	if tuner, ok := config.(PoolTuner); ok {
		maxConns, minConns, lifetime, idle := tuner.PoolLimits()
		if maxConns > 0 {
			dbConfig.MaxConns = maxConns
		}
		if minConns > 0 {
			dbConfig.MinConns = minConns
		}
		if lifetime > 0 {
			dbConfig.MaxConnLifetime = lifetime
		}
		if idle > 0 {
			dbConfig.MaxConnIdleTime = idle
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgreDB{
		Pool:     pool,
		DBConfig: dbConfig,
	}, nil
}
