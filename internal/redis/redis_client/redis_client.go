package redis_client

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient returns a pinged client for the presence mirror.
func NewRedisClient(ctx context.Context, host string, port int) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: 16,
	})

	ctx, cancelFunc := context.WithTimeout(ctx, 5*time.Second)
	defer cancelFunc()
	if _, err := rc.Ping(ctx).Result(); err != nil {
		_ = rc.Close()
		err = fmt.Errorf("redis connection failed: %w", err)
		zap.L().Error("redis_connect", zap.Error(err))
		return nil, err
	}
	return rc, nil
}
