package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "botprint:session:"

// redisClient is the part of *redis.Client the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore shares session storage between collector replicas.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
}

// NewRedisStore connects to url (redis:// or rediss://) and verifies the
// connection with a ping.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisStore(client, ttl), nil
}

func newRedisStore(c redisClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: c, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, scope, key string) (string, bool) {
	k := keyPrefix + storeKey(scope, key)
	v, err := s.client.Get(ctx, k).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("session: redis get %s: %v", k, err)
		}
		return "", false
	}
	if err := s.client.Expire(ctx, k, s.ttl).Err(); err != nil {
		log.Printf("session: redis expire %s: %v", k, err)
	}
	return v, true
}

func (s *RedisStore) Set(ctx context.Context, scope, key, value string) {
	k := keyPrefix + storeKey(scope, key)
	if err := s.client.Set(ctx, k, value, s.ttl).Err(); err != nil {
		log.Printf("session: redis set %s: %v", k, err)
	}
}

func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStore) Close() error { return s.client.Close() }
