package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// slidingWindowScript implements the atomic check-and-admit over a ZSET of
// request timestamps. Scores are unix seconds; members are unique per
// admission so two admissions in the same second both count.
var slidingWindowScript = goredis.NewScript(`
local key = KEYS[1]
local window_size = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window_size)

local current_count = redis.call('ZCARD', key)

if current_count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('EXPIRE', key, window_size)
    return {1, limit - current_count - 1}
else
    return {0, 0}
end
`)

// RedisStore implements Store on a Redis backend.
type RedisStore struct {
	client    goredis.UniversalClient
	namespace string

	// Statistics
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errs   atomic.Int64
}

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	// Single node configuration
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Cluster configuration
	ClusterAddrs []string `yaml:"cluster_addrs"`

	// Sentinel configuration
	SentinelAddrs  []string `yaml:"sentinel_addrs"`
	SentinelMaster string   `yaml:"sentinel_master"`

	// Common configuration
	Namespace    string        `yaml:"namespace"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		Namespace:    "gatewarden",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(cfg RedisConfig) (*RedisStore, error) {
	var client goredis.UniversalClient

	switch {
	case len(cfg.ClusterAddrs) > 0:
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	case len(cfg.SentinelAddrs) > 0:
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
		})
	default:
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client:    client,
		namespace: cfg.Namespace,
	}, nil
}

// NewRedisFromClient wraps an existing client. Used by tests.
func NewRedisFromClient(client goredis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) prefixKey(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Get retrieves a value from Redis. Returns (nil, nil) on a miss.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			s.misses.Add(1)
			return nil, nil
		}
		s.errs.Add(1)
		return nil, fmt.Errorf("redis get: %w", err)
	}
	s.hits.Add(1)
	return val, nil
}

// Set stores a value in Redis with TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefixKey(key), value, ttl).Err(); err != nil {
		s.errs.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}
	s.sets.Add(1)
	return nil
}

// Delete removes keys from Redis.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefixKey(k)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		s.errs.Add(1)
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// GetFloat reads a numeric key. Returns 0 on a miss.
func (s *RedisStore) GetFloat(ctx context.Context, key string) (float64, error) {
	val, err := s.client.Get(ctx, s.prefixKey(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		s.errs.Add(1)
		return 0, fmt.Errorf("redis get: %w", err)
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis get: non-numeric value at %s: %w", key, err)
	}
	return f, nil
}

// IncrByFloat atomically increments a numeric key.
func (s *RedisStore) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	val, err := s.client.IncrByFloat(ctx, s.prefixKey(key), delta).Result()
	if err != nil {
		s.errs.Add(1)
		return 0, fmt.Errorf("redis incrbyfloat: %w", err)
	}
	return val, nil
}

// HIncrBy atomically increments an integer hash field.
func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	if err := s.client.HIncrBy(ctx, s.prefixKey(key), field, delta).Err(); err != nil {
		s.errs.Add(1)
		return fmt.Errorf("redis hincrby: %w", err)
	}
	return nil
}

// HIncrByFloat atomically increments a float hash field.
func (s *RedisStore) HIncrByFloat(ctx context.Context, key, field string, delta float64) error {
	if err := s.client.HIncrByFloat(ctx, s.prefixKey(key), field, delta).Err(); err != nil {
		s.errs.Add(1)
		return fmt.Errorf("redis hincrbyfloat: %w", err)
	}
	return nil
}

// HGetAll reads a whole hash.
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	val, err := s.client.HGetAll(ctx, s.prefixKey(key)).Result()
	if err != nil {
		s.errs.Add(1)
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	return val, nil
}

// Expire sets or refreshes a key's TTL.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, s.prefixKey(key), ttl).Err(); err != nil {
		s.errs.Add(1)
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

// Keys lists keys matching a glob pattern, with the namespace stripped.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefixKey(pattern), 0).Iterator()
	prefixLen := 0
	if s.namespace != "" {
		prefixLen = len(s.namespace) + 1
	}
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[prefixLen:])
	}
	if err := iter.Err(); err != nil {
		s.errs.Add(1)
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// WindowAdmit runs the sliding-window Lua script as one atomic step.
func (s *RedisStore) WindowAdmit(ctx context.Context, key string, window time.Duration, limit int, member string) (bool, int, error) {
	now := time.Now().Unix()
	val, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefixKey(key)},
		int64(window.Seconds()), limit, now, member,
	).Result()
	if err != nil {
		s.errs.Add(1)
		return false, 0, fmt.Errorf("redis window admit: %w", err)
	}

	results, ok := val.([]interface{})
	if !ok || len(results) != 2 {
		return false, 0, fmt.Errorf("redis window admit: unexpected script result %T", val)
	}
	admitted := toInt64(results[0]) == 1
	remaining := int(toInt64(results[1]))
	return admitted, remaining, nil
}

// WindowCount counts live entries without admitting.
func (s *RedisStore) WindowCount(ctx context.Context, key string, window time.Duration) (int, error) {
	now := time.Now().Unix()
	prefixed := s.prefixKey(key)

	if err := s.client.ZRemRangeByScore(ctx, prefixed, "0", strconv.FormatInt(now-int64(window.Seconds()), 10)).Err(); err != nil {
		s.errs.Add(1)
		return 0, fmt.Errorf("redis window count: %w", err)
	}
	count, err := s.client.ZCard(ctx, prefixed).Result()
	if err != nil {
		s.errs.Add(1)
		return 0, fmt.Errorf("redis window count: %w", err)
	}
	return int(count), nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Stats returns operation counters for monitoring.
func (s *RedisStore) Stats() (hits, misses, sets, errs int64) {
	return s.hits.Load(), s.misses.Load(), s.sets.Load(), s.errs.Load()
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	case float64:
		return int64(n)
	default:
		return 0
	}
}
