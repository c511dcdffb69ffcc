package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps sessions in Redis with TTL.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend builds a Redis-backed session backend.
func NewRedisBackend(addr, password, prefix string, ttl time.Duration) *RedisBackend {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bookhub:web:session"
	}
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisBackend) key(sid string) string {
	return s.prefix + ":" + sid
}

// Get resolves a browser id to its encoded session.
func (s *RedisBackend) Get(ctx context.Context, sid string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	val, err := s.client.Get(ctx, s.key(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put writes the encoded session with TTL.
func (s *RedisBackend) Put(ctx context.Context, sid string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.client.Set(ctx, s.key(sid), data, s.ttl).Err()
}

// Delete removes the browser's session.
func (s *RedisBackend) Delete(ctx context.Context, sid string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisBackend) Close() error {
	return s.client.Close()
}
