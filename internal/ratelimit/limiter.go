package ratelimit

import "context"

// Limiter decides whether another attempt for key is allowed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
	Close() error
}

var (
	_ Limiter = (*FixedWindowLimiter)(nil)
	_ Limiter = (*LocalLimiter)(nil)
)
