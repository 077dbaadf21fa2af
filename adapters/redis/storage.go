package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"signwise/core"
	"signwise/engine"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"SIGNWISE_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" env:"SIGNWISE_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"SIGNWISE_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"SIGNWISE_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string `json:"key_prefix" env:"SIGNWISE_REDIS_KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "signwise:",
	}
}

// Store implements engine.BatchStore on top of Redis.
// Data structure:
// - {prefix}{key} -> decimal string for integers
// - {prefix}{key} -> "YYYY-MM-DD" for days
// Batches run inside MULTI/EXEC.
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q", engine.ErrInvalidValue, key, raw)
	}
	return v, true, nil
}

func (s *Store) GetDay(ctx context.Context, key string) (core.Day, bool, error) {
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return core.Day{}, false, err
	}
	d, err := core.ParseDay(raw)
	if err != nil {
		return core.Day{}, false, fmt.Errorf("%w: %s=%q", engine.ErrInvalidValue, key, raw)
	}
	return d, true, nil
}

func (s *Store) SetInt(ctx context.Context, key string, v int64) error {
	if err := s.client.Set(ctx, s.key(key), v, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetDay(ctx context.Context, key string, d core.Day) error {
	if err := s.client.Set(ctx, s.key(key), d.String(), 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to remove keys: %w", err)
	}
	return nil
}

// Apply writes muts in one MULTI/EXEC transaction.
func (s *Store) Apply(ctx context.Context, muts []engine.Mutation) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range muts {
			switch m.Op {
			case engine.OpSetInt:
				pipe.Set(ctx, s.key(m.Key), m.Int, 0)
			case engine.OpSetDay:
				pipe.Set(ctx, s.key(m.Key), m.Day.String(), 0)
			case engine.OpRemove:
				pipe.Del(ctx, s.key(m.Key))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}
	return nil
}

// Keys walks the keyspace with SCAN; the configured key prefix is stripped.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, s.key(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ engine.BatchStore = (*Store)(nil)
	_ engine.KeyLister  = (*Store)(nil)
)
