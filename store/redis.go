package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/hitcounter/core"
)

const (
	defaultPrefix     = "hitcounter:"
	defaultTTL        = time.Hour
	defaultMaxRetries = 10
)

// RedisStore provides Redis-backed storage for hit logs. Each key holds the
// JSON encoded log and expires after TTL without writes.
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	maxRetries int
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr       string        // Redis address (e.g., "localhost:6379")
	Password   string        // Redis password (empty for no auth)
	DB         int           // Redis database number
	TTL        time.Duration // TTL for hit logs (default: 1 hour)
	Prefix     string        // Key prefix (default: "hitcounter:")
	MaxRetries int           // Optimistic transaction retries per update (default: 10)
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisStoreWithClient(client, config)
}

// NewRedisStoreWithClient wraps an existing client, e.g. a cluster client.
// Connection fields of config are ignored.
func NewRedisStoreWithClient(client redis.UniversalClient, config RedisConfig) *RedisStore {
	s := &RedisStore{
		client:     client,
		prefix:     config.Prefix,
		ttl:        config.TTL,
		maxRetries: config.MaxRetries,
	}
	if s.prefix == "" {
		s.prefix = defaultPrefix
	}
	if s.ttl == 0 {
		s.ttl = defaultTTL
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	return s
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// getter is satisfied by both the client and a WATCH transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// load reads and decodes a log; a missing key is an empty log.
func load(ctx context.Context, c getter, redisKey string) (*core.HitLog, error) {
	data, err := c.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return &core.HitLog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrStoreFailed, redisKey, err)
	}
	var log core.HitLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStoreFailed, redisKey, err)
	}
	return &log, nil
}

// Get retrieves the log for a given key
func (s *RedisStore) Get(ctx context.Context, key string) (*core.HitLog, error) {
	return load(ctx, s.client, s.redisKey(key))
}

// Update reads the log under WATCH, applies fn and writes the result in a
// MULTI block. A concurrent write to the same key aborts the transaction and
// the update is retried, up to MaxRetries times.
func (s *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) (*core.HitLog, error) {
	redisKey := s.redisKey(key)

	var updated *core.HitLog
	var fnErr error
	txf := func(tx *redis.Tx) error {
		current, err := load(ctx, tx, redisKey)
		if err != nil {
			return err
		}
		updated, fnErr = fn(current)
		if fnErr != nil {
			return fnErr
		}
		if updated == nil {
			updated = &core.HitLog{}
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %w", ErrStoreFailed, redisKey, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, redisKey)
		switch {
		case err == nil:
			return updated, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrStoreFailed):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: update %s: %w", ErrStoreFailed, redisKey, err)
		}
	}
	return nil, fmt.Errorf("%w: update %s: gave up after %d conflicting attempts", ErrStoreFailed, redisKey, s.maxRetries)
}

// Delete removes the log for a given key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrStoreFailed, key, err)
	}
	return nil
}

// Clear removes every key under the store's prefix
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: clear: %w", ErrStoreFailed, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: clear: %w", ErrStoreFailed, err)
	}
	return nil
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
