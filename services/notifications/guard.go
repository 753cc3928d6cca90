package notifications

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// SendGuard is an optional fast path in front of the log table. It lets
// concurrent runs on different hosts skip a recipient without a DB round trip.
// The log table's unique key stays authoritative.
type SendGuard interface {
	Acquire(ctx context.Context, key string, until time.Time) (bool, error)
	Release(ctx context.Context, key string)
}

// RedisSendGuard implements SendGuard with SETNX.
type RedisSendGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisSendGuard(client *redis.Client) *RedisSendGuard {
	if client == nil {
		return nil
	}
	return &RedisSendGuard{client: client, prefix: "notif:sent:"}
}

func (g *RedisSendGuard) Acquire(ctx context.Context, key string, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return g.client.SetNX(ctx, g.prefix+key, 1, ttl).Result()
}

func (g *RedisSendGuard) Release(ctx context.Context, key string) {
	g.client.Del(ctx, g.prefix+key)
}
