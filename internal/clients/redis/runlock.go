package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/autosem/autosem-backend/internal/pkg/logger"
)

// RunLock is an advisory lock that keeps scheduled and manually triggered
// optimization passes from overlapping across processes. The TTL bounds how
// long a crashed holder can wedge the lock.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Close() error
}

type runLock struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewRunLock(log *logger.Logger) (RunLock, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &runLock{
		log: log.With("service", "RedisRunLock"),
		rdb: rdb,
	}, nil
}

func (l *runLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.rdb == nil {
		return false, fmt.Errorf("redis run lock not initialized")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	ok, err := l.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (l *runLock) Release(ctx context.Context, key string) error {
	if l == nil || l.rdb == nil {
		return fmt.Errorf("redis run lock not initialized")
	}
	return l.rdb.Del(ctx, key).Err()
}

func (l *runLock) Close() error {
	if l == nil || l.rdb == nil {
		return nil
	}
	return l.rdb.Close()
}
