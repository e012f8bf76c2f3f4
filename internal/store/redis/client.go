package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marks/internal/connect"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// ClientOptions holds the Redis connection settings.
type ClientOptions struct {
	Addr         string        // Redis address (ex: "localhost:6379")
	User         string        // Optional username
	Password     string        // Optional password
	DB           int           // Redis DB number
	DialTimeout  time.Duration // Redis dial timeout
	ReadTimeout  time.Duration // Redis read timeout
	WriteTimeout time.Duration // Redis write timeout
	PoolSize     int           // Redis connection pool size
}

// NewClient creates a Redis client and waits until the server answers,
// retrying with exponential backoff as described by retry.
func NewClient(ctx context.Context, opts ClientOptions, retry connect.Options, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	retry.Name = "redis"
	retry.Target = opts.Addr
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := connect.WithRetry(ctx, retry, ping, log); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
