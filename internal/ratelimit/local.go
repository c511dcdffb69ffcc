package ratelimit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

// idleClientTTL is how long a client's bucket is kept after its last attempt.
const idleClientTTL = 3 * time.Minute

// LocalLimiter is an in-process token bucket per key. It is used when no
// Redis is configured, so each replica counts on its own.
type LocalLimiter struct {
	every time.Duration
	burst int

	mu      sync.Mutex
	clients *ttlcache.Cache[string, *rate.Limiter]
}

// NewLocalLimiter allows limit attempts per window with a burst of limit.
func NewLocalLimiter(limit int, window time.Duration) (*LocalLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	clients := ttlcache.New(ttlcache.WithTTL[string, *rate.Limiter](idleClientTTL))
	go clients.Start()
	return &LocalLimiter{
		every:   window / time.Duration(limit),
		burst:   limit,
		clients: clients,
	}, nil
}

func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	if l == nil {
		return false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	return l.bucket(key).Allow()
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if item := l.clients.Get(key); item != nil {
		return item.Value()
	}
	limiter := rate.NewLimiter(rate.Every(l.every), l.burst)
	l.clients.Set(key, limiter, ttlcache.DefaultTTL)
	return limiter
}

// Close stops the expiry loop.
func (l *LocalLimiter) Close() error {
	if l == nil {
		return nil
	}
	l.clients.Stop()
	return nil
}
