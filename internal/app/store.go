package app

import (
	"context"
	"fmt"
	"io"

	"github.com/MrSnakeDoc/marks/internal/config"
	"github.com/MrSnakeDoc/marks/internal/connect"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/store/memory"
	"github.com/MrSnakeDoc/marks/internal/store/postgres"
	storeredis "github.com/MrSnakeDoc/marks/internal/store/redis"
	"github.com/MrSnakeDoc/marks/internal/store/sqlite"
)

// Store is what every backend provides.
type Store interface {
	domain.Store
	domain.Pinger
	io.Closer
}

func retryOptions(cfg *config.Config, name string) connect.Options {
	opts := connect.DefaultOptions(name, "")
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.RetryInterval = cfg.RetryInterval
	opts.MaxWait = cfg.MaxWait
	opts.PingTimeout = cfg.PingTimeout
	opts.WarnThreshold = cfg.WarnThreshold
	return opts
}

// OpenStore connects to the backend selected by cfg.Store. Backends that
// own their schema are migrated, which is idempotent.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (Store, error) {
	log = log.Named("store").With(logger.String("backend", cfg.Store))

	var store Store
	switch cfg.Store {
	case config.StoreRedis:
		log.Infof("Connecting to Redis at %s", cfg.RedisAddr)
		client, err := storeredis.NewClient(ctx, storeredis.ClientOptions{
			Addr:         cfg.RedisAddr,
			User:         cfg.RedisUser,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  cfg.RedisDT,
			ReadTimeout:  cfg.RedisRT,
			WriteTimeout: cfg.RedisWT,
			PoolSize:     cfg.RedisPoolSize,
		}, retryOptions(cfg, config.StoreRedis), log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = storeredis.NewStore(client, log)

	case config.StorePostgres:
		log.Infof("Connecting to PostgreSQL at %s", postgres.Redact(cfg.PostgresDSN))
		pg, err := postgres.New(ctx, cfg.PostgresDSN, retryOptions(cfg, config.StorePostgres), log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store = pg

	case config.StoreSQLite:
		log.Infof("Opening SQLite database %s", cfg.SQLitePath)
		db, err := sqlite.New(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		store = db

	case config.StoreMemory:
		log.Warn("using in-memory store, bookmarks are lost on restart")
		store = memory.NewStore(log)

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if m, ok := store.(domain.Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate %s: %w", cfg.Store, err)
		}
	}

	log.Info("store initialized successfully")
	return store, nil
}
