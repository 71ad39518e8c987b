package database

import (
	"context"
	"fmt"
	"path/filepath"

	"docchat/internal/config"
	"docchat/internal/docchat"
)

// DatabaseFileName is the SQLite file created inside DatabaseConfig.DataDir.
const DatabaseFileName = "docchat.db"

// NewStoreFromConfig creates a Store implementation based on the database config type.
func NewStoreFromConfig(ctx context.Context, cfg config.DatabaseConfig, logger docchat.Logger) (docchat.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, DatabaseFileName), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis_addr required for redis database")
		}
		store, err := NewRedisStore(ctx, RedisOptions{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			ActivityCap: cfg.ActivityLimit,
		}, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return NewMemoryStore(cfg.ActivityLimit, logger), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
