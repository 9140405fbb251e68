package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-card/guardian-core/internal/store"
)

// initStore opens the configured backend and, when redis.addr is set,
// overlays Redis for override tokens and dwell state.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "", "memory":
		st = store.NewMemory()
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "guardian.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr == "" {
		return st, nil
	}
	rs, err := store.NewRedis(ctx, store.RedisConfig{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Info("redis token and dwell backend enabled", zap.String("addr", cfg.Redis.Addr))
	return store.WithRedis(st, rs), nil
}
