package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans envelopes out over Redis Pub/Sub: one channel per
// session plus a firehose channel carrying everything.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}

	if err := p.rdb.Publish(ctx, p.channel, b).Err(); err != nil {
		return err
	}
	if env.SessionID != "" {
		return p.rdb.Publish(ctx, p.channel+":"+env.SessionID, b).Err()
	}
	return nil
}
