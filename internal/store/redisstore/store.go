// Package redisstore holds the fixed-window rate-limit counters. The counters
// are ingress-level, stateless policy and never touch the billing data model.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// IncrWindow increments the caller's counter for the current window and
// returns the new count. The key expires with the window, so idle callers
// cost nothing.
func (s *Store) IncrWindow(ctx context.Context, caller string, window time.Duration) (int64, error) {
	key := fmt.Sprintf("ratelimit:%s", caller)
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
