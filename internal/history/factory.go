package history

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sofatutor/imagegen-proxy/internal/config"
)

// NewStore builds the backend selected by cfg.Backend.
func NewStore(ctx context.Context, cfg config.HistoryConfig) (Store, error) {
	switch cfg.Backend {
	case config.HistoryBackendFile, "":
		return NewFileStore(cfg.Path, cfg.Capacity)
	case config.HistoryBackendSQLite:
		return NewSQLiteStore(cfg.SQLitePath, cfg.Capacity)
	case config.HistoryBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, cfg.RedisPrefix, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.Backend)
	}
}
