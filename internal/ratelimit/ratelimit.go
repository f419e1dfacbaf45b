// Package ratelimit throttles guest requests per client key (usually the IP).
// Limiters are created by main and injected into the HTTP layer.
package ratelimit

import (
	"context"
	"time"
)

type Config struct {
	Limit  int
	Window time.Duration
}

type Limiter interface {
	// Allow counts one request for key. When it is refused, retryAfter tells
	// the client when the window frees up.
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
	Reset(ctx context.Context, key string) error
}
