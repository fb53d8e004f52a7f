// redis.go -- go-redis implementation of the pending-authorization store.
//
// Used when the service runs as more than one process: a callback may land on a
// different process than the one that served the authorize request, so the
// state values must live in a shared keyed store. GETDEL gives the same atomic
// take semantics the in-memory store gets from its mutex; Redis key expiry
// replaces the lazy purge.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingKeyPrefix namespaces pending-authorization keys so the database can
// be shared with other setlog keyspaces.
const pendingKeyPrefix = "pending_auth:"

// RedisPendingStore implements PendingStore against a shared Redis instance.
type RedisPendingStore struct {
	rdb *redis.Client
}

// NewRedisPendingStore connects to Redis and returns a ready-to-use store.
// It pings Redis to verify connectivity before returning.
// Call once at startup from main.go; the returned store is safe for concurrent use.
func NewRedisPendingStore(ctx context.Context, redisURL string) (*RedisPendingStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisPendingStore{rdb}, nil
}

// Close shuts down the Redis client and releases all resources.
// Call via defer in main.go after creating the store.
func (s *RedisPendingStore) Close() error {
	return s.rdb.Close()
}

// CheckHealth pings Redis.
func (s *RedisPendingStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Put records the key with the given TTL. Redis expires it server-side, so no
// explicit purge pass is needed.
func (s *RedisPendingStore) Put(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, pendingKeyPrefix+key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("storing pending authorization: %w", err)
	}
	return nil
}

// Take atomically reads and deletes the key via GETDEL. Exactly one of any
// number of concurrent callers gets true; expired and unknown keys read
// identically as a miss.
func (s *RedisPendingStore) Take(ctx context.Context, key string) (bool, error) {
	_, err := s.rdb.GetDel(ctx, pendingKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("consuming pending authorization: %w", err)
	}
	return true, nil
}
