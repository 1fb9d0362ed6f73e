package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"notary-payments/internal/models"
)

const pendingMarker = "PENDING"

// ReceiptCache claims receipts for the duration of an order creation and
// then remembers the resulting gateway order for the TTL.
type ReceiptCache struct {
	Client *redis.Client
	ttl    time.Duration
}

func NewReceiptCache(client *redis.Client, ttl time.Duration) *ReceiptCache {
	return &ReceiptCache{Client: client, ttl: ttl}
}

func receiptKey(receipt string) string {
	return fmt.Sprintf("order_receipt:%s", receipt)
}

// Claim returns true when the caller owns the receipt.
func (r *ReceiptCache) Claim(ctx context.Context, receipt string) (bool, error) {
	return r.Client.SetNX(ctx, receiptKey(receipt), pendingMarker, r.ttl).Result()
}

// Lookup returns the remembered entry, or nil while the claim is still pending
// or after it expired.
func (r *ReceiptCache) Lookup(ctx context.Context, receipt string) (*models.ReceiptEntry, error) {
	val, err := r.Client.Get(ctx, receiptKey(receipt)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if val == pendingMarker {
		return nil, nil
	}

	var entry models.ReceiptEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("corrupt receipt entry %s: %w", receipt, err)
	}
	return &entry, nil
}

func (r *ReceiptCache) Complete(ctx context.Context, receipt string, entry *models.ReceiptEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt entry: %w", err)
	}
	return r.Client.Set(ctx, receiptKey(receipt), data, r.ttl).Err()
}

// Release drops a pending claim. A completed entry is left alone.
func (r *ReceiptCache) Release(ctx context.Context, receipt string) error {
	key := receiptKey(receipt)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == pendingMarker {
		return r.Client.Del(ctx, key).Err()
	}
	return nil
}

func (r *ReceiptCache) HealthCheck(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
