package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

// RedisReportCache keeps the last completed dispatch report per session
// under a TTL, so operators can fetch campaign results without holding
// a socket open for the completion event.
type RedisReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReportCache(rdb *redis.Client, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{rdb: rdb, ttl: ttl}
}

func reportKey(sessionID string) string {
	return "dispatch:last:" + sessionID
}

func (c *RedisReportCache) StoreReport(ctx context.Context, report model.DispatchReport) error {
	b, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, reportKey(report.SessionID), b, c.ttl).Err()
}

func (c *RedisReportCache) LastReport(ctx context.Context, sessionID string) (model.DispatchReport, error) {
	raw, err := c.rdb.Get(ctx, reportKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DispatchReport{}, ErrNoReport
	}
	if err != nil {
		return model.DispatchReport{}, err
	}

	var report model.DispatchReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return model.DispatchReport{}, err
	}
	return report, nil
}
