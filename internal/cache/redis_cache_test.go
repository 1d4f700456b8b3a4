package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/creditoya/whatsapp-gateway/internal/model"
)

func TestRedisReportCache_RoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisReportCache(rdb, 10*time.Second)
	ctx := context.Background()

	report := model.DispatchReport{
		JobID:     "job-1",
		SessionID: "tenant-1",
		Sent:      2,
		Failed:    1,
		PerRecipient: []model.RecipientResult{
			{Recipient: model.Recipient{Phone: "3001234567", DisplayName: "Ana"}, Outcome: model.OutcomeSent},
		},
	}

	if err := c.StoreReport(ctx, report); err != nil {
		t.Fatalf("StoreReport() error: %v", err)
	}

	if ttl := mr.TTL("dispatch:last:tenant-1"); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	got, err := c.LastReport(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("LastReport() error: %v", err)
	}
	if got.JobID != "job-1" || got.Sent != 2 || got.Failed != 1 {
		t.Fatalf("unexpected report %+v", got)
	}
	if len(got.PerRecipient) != 1 || got.PerRecipient[0].Outcome != model.OutcomeSent {
		t.Fatalf("unexpected per-recipient results %+v", got.PerRecipient)
	}
}

func TestRedisReportCache_OverwritesPreviousReport(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisReportCache(rdb, time.Minute)
	ctx := context.Background()

	if err := c.StoreReport(ctx, model.DispatchReport{JobID: "first", SessionID: "s"}); err != nil {
		t.Fatalf("first StoreReport() error: %v", err)
	}
	if err := c.StoreReport(ctx, model.DispatchReport{JobID: "second", SessionID: "s"}); err != nil {
		t.Fatalf("second StoreReport() error: %v", err)
	}

	got, err := c.LastReport(ctx, "s")
	if err != nil {
		t.Fatalf("LastReport() error: %v", err)
	}
	if got.JobID != "second" {
		t.Fatalf("expected latest report, got %q", got.JobID)
	}
}

func TestRedisReportCache_MissingReport(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisReportCache(rdb, time.Minute)

	if _, err := c.LastReport(context.Background(), "nobody"); !errors.Is(err, ErrNoReport) {
		t.Fatalf("expected ErrNoReport, got %v", err)
	}
}
