// Package userdb wraps the Redis client behind the small command surface
// the user service needs: strings, hashes, sets, lists, atomic counters
// and SETNX-style claims. Keeping the surface narrow keeps the service
// testable against an in-process Redis.
package userdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/planethub/planethub/pkg/config"
)

// DB is a thin facade over one Redis connection pool.
type DB struct {
	rdb *redis.Client
}

// New connects to the configured Redis instance.
func New(cfg config.RedisConfig) *DB {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: cfg.Addr()}))
}

// NewWithClient wraps an existing client. Tests use this with miniredis.
func NewWithClient(rdb *redis.Client) *DB {
	return &DB{rdb: rdb}
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.rdb.Close()
}

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Get returns a string key. A missing key is (value "", ok false).
func (d *DB) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := d.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores a string key.
func (d *DB) Set(ctx context.Context, key, value string) error {
	if err := d.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// SetNX claims a key atomically; false means it was already taken.
func (d *DB) SetNX(ctx context.Context, key, value string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Del removes keys.
func (d *DB) Del(ctx context.Context, keys ...string) error {
	if err := d.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Incr atomically increments a counter and returns the new value.
func (d *DB) Incr(ctx context.Context, key string) (int64, error) {
	v, err := d.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return v, nil
}

// IncrBy adjusts a counter by delta (which may be negative).
func (d *DB) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := d.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby %s: %w", key, err)
	}
	return v, nil
}

// HGet returns one hash field. A missing field is (value "", ok false).
func (d *DB) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := d.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget %s %s: %w", key, field, err)
	}
	return v, true, nil
}

// HSet stores hash fields from alternating field/value pairs.
func (d *DB) HSet(ctx context.Context, key string, pairs ...string) error {
	args := make([]any, len(pairs))
	for i, p := range pairs {
		args[i] = p
	}
	if err := d.rdb.HSet(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

// HGetAll returns every field of a hash (empty map for a missing key).
func (d *DB) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	v, err := d.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	return v, nil
}

// SAdd adds members to a set.
func (d *DB) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := d.rdb.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes members from a set.
func (d *DB) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := d.rdb.SRem(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("redis srem %s: %w", key, err)
	}
	return nil
}

// SIsMember tests set membership.
func (d *DB) SIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := d.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember %s: %w", key, err)
	}
	return ok, nil
}

// SMembers returns every member of a set.
func (d *DB) SMembers(ctx context.Context, key string) ([]string, error) {
	v, err := d.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers %s: %w", key, err)
	}
	return v, nil
}

// LPush prepends a value to a list.
func (d *DB) LPush(ctx context.Context, key, value string) error {
	if err := d.rdb.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", key, err)
	}
	return nil
}

// LRem removes occurrences of value from a list.
func (d *DB) LRem(ctx context.Context, key, value string) error {
	if err := d.rdb.LRem(ctx, key, 0, value).Err(); err != nil {
		return fmt.Errorf("redis lrem %s: %w", key, err)
	}
	return nil
}

// RPop removes and returns the list tail. A missing or empty list is
// (value "", ok false).
func (d *DB) RPop(ctx context.Context, key string) (string, bool, error) {
	v, err := d.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis rpop %s: %w", key, err)
	}
	return v, true, nil
}
