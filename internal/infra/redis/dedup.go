package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/courtvision/analysis-client/internal/domain/port"
	goredis "github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Deduplicator claims request keys with SET NX so a redelivered request is
// processed by one worker only.
type Deduplicator struct {
	client goredis.Cmdable
}

var _ port.Deduplicator = (*Deduplicator)(nil)

func NewDeduplicator(client goredis.Cmdable) *Deduplicator {
	return &Deduplicator{client: client}
}

func (d *Deduplicator) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

func (d *Deduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}
