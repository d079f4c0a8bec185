package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/upbo/upbotrading/internal/config"
	"github.com/upbo/upbotrading/internal/logger"
)

// Backend is the storage selected by configuration. Repo is set only for the
// sqlite driver, which is the one that keeps valuation snapshots.
type Backend struct {
	KV    KV
	Repo  *Repository
	close func() error
}

// Open connects the configured storage driver.
func Open(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (*Backend, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql.DB: %w", err)
		}
		repo := NewRepository(db)
		log.Info("storage opened", "driver", cfg.Driver, "path", cfg.SQLitePath)
		return &Backend{KV: repo, Repo: repo, close: sqlDB.Close}, nil

	case "redis":
		redis.SetLogger(log)
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		log.Info("storage opened", "driver", cfg.Driver, "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
		return &Backend{KV: NewRedisKV(rdb, cfg.RedisPrefix), close: rdb.Close}, nil

	case "memory":
		log.Warn("storage is in-memory, account state is lost on exit")
		return &Backend{KV: NewMemoryKV()}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}
