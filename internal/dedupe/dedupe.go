// Package dedupe suppresses replayed webhook deliveries using Redis SETNX keys.
package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const keyPrefix = "outreach:webhook:"

// Deduper records webhook delivery keys so each is processed once within the TTL.
type Deduper struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisClient creates a go-redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 20,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrapf(err, "dedupe: ping redis %s", addr)
	}
	return client, nil
}

func New(client redis.Cmdable, ttl time.Duration) *Deduper {
	return &Deduper{client: client, ttl: ttl}
}

// First claims key and reports whether this caller is the first to see it.
func (d *Deduper) First(ctx context.Context, kind, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, keyPrefix+kind+":"+key, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "dedupe: claim %s %s", kind, key)
	}
	return ok, nil
}

// Release forgets key so a failed delivery can be processed again on redelivery.
func (d *Deduper) Release(ctx context.Context, kind, key string) error {
	if err := d.client.Del(ctx, keyPrefix+kind+":"+key).Err(); err != nil {
		return eris.Wrapf(err, "dedupe: release %s %s", kind, key)
	}
	return nil
}
