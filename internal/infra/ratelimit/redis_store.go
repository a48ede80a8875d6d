package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4/middleware"
)

// 固定ウィンドウのカウンタ。複数プロセスで上限を共有する。
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	limit   int64
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
}

var _ middleware.RateLimiterStore = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, prefix string, limit int, window time.Duration) *RedisStore {
	return &RedisStore{
		rdb:     rdb,
		prefix:  prefix,
		limit:   int64(limit),
		window:  window,
		timeout: 500 * time.Millisecond,
		now:     time.Now,
	}
}

func (s *RedisStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	bucket := s.now().UnixNano() / int64(s.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", s.prefix, identifier, bucket)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	//最初の1回で期限をつける
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, s.window).Err(); err != nil {
			return false, err
		}
	}
	return n <= s.limit, nil
}
