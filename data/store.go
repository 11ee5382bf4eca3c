package data

import (
	"context"
	"fmt"

	"github.com/giygas/dosecurve-api/config"
	"github.com/giygas/dosecurve-api/interfaces"
	"github.com/giygas/dosecurve-api/logging"
)

// Open returns the store selected by STORAGE_BACKEND
func Open(ctx context.Context, cfg *config.Config) (interfaces.DoseStore, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory, "":
		logging.Info("Using in-memory dose store, data is lost on restart")
		return NewMemoryStore(), nil
	case config.StorageRedis:
		store, err := NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		logging.Info("Connected to redis dose store", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return store, nil
	case config.StoragePostgres:
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logging.Info("Connected to postgres dose store")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}
