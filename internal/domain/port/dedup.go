package port

import (
	"context"
	"time"
)

// Deduplicator claims a key once; later claims within ttl return false.
type Deduplicator interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
