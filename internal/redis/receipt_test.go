package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notary-payments/internal/models"
)

func TestReceiptKey(t *testing.T) {
	assert.Equal(t, "order_receipt:rcpt_1", receiptKey("rcpt_1"))
}

// newTestCache needs a running Redis; REDIS_ADDR overrides localhost:6379.
func newTestCache(t *testing.T) *ReceiptCache {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: time.Second})
	cache := NewReceiptCache(client, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := cache.HealthCheck(ctx); err != nil {
		client.Close()
		t.Skip("Skipping test because Redis is not available:", err)
	}
	t.Cleanup(func() { client.Close() })
	return cache
}

func TestReceiptCacheLifecycle(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	receipt := fmt.Sprintf("rcpt_test_%d", time.Now().UnixNano())
	t.Cleanup(func() { cache.Client.Del(ctx, receiptKey(receipt)) })

	claimed, err := cache.Claim(ctx, receipt)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = cache.Claim(ctx, receipt)
	require.NoError(t, err)
	assert.False(t, claimed)

	pending, err := cache.Lookup(ctx, receipt)
	require.NoError(t, err)
	assert.Nil(t, pending)

	require.NoError(t, cache.Complete(ctx, receipt, &models.ReceiptEntry{
		Amount:   500,
		Currency: "INR",
		Order:    models.OrderDescriptor{"id": "order_abc", "amount": float64(500)},
	}))

	// A completed entry survives Release.
	require.NoError(t, cache.Release(ctx, receipt))
	entry, err := cache.Lookup(ctx, receipt)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "order_abc", entry.Order.ID())
	assert.Equal(t, float64(500), entry.Order["amount"])
	assert.True(t, entry.Matches(500, "INR"))
	assert.False(t, entry.Matches(99900, "INR"))
}

func TestReceiptCacheReleaseDropsPendingClaim(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	receipt := fmt.Sprintf("rcpt_release_%d", time.Now().UnixNano())
	t.Cleanup(func() { cache.Client.Del(ctx, receiptKey(receipt)) })

	claimed, err := cache.Claim(ctx, receipt)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, cache.Release(ctx, receipt))

	claimed, err = cache.Claim(ctx, receipt)
	require.NoError(t, err)
	assert.True(t, claimed)
}
