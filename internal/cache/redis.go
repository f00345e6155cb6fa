package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MiladFarazian/park-and-sync-sub001/config"
	"github.com/MiladFarazian/park-and-sync-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client     *redis.Client
	pendingTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, pendingTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:     redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		pendingTTL: pendingTTL,
	}
}

// AcquireBookingLock serializes money-mutating operations on one booking.
// Returns false when another operation holds the lock.
func (c *RedisCache) AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, bookingLockKey(bookingID), "locked", ttl).Result()
}

func (c *RedisCache) ReleaseBookingLock(ctx context.Context, bookingID string) error {
	return c.client.Del(ctx, bookingLockKey(bookingID)).Err()
}

// SetPendingExtension stores the authorized-but-unfinalized extension for
// the step-up flow. The TTL bounds how long the payer has to authenticate.
func (c *RedisCache) SetPendingExtension(ctx context.Context, ext domain.PendingExtension) error {
	payload, err := json.Marshal(ext)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, pendingExtensionKey(ext.BookingID), payload, c.pendingTTL).Err()
}

// GetPendingExtension returns nil without error when no extension is pending.
func (c *RedisCache) GetPendingExtension(ctx context.Context, bookingID string) (*domain.PendingExtension, error) {
	data, err := c.client.Get(ctx, pendingExtensionKey(bookingID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var ext domain.PendingExtension
	if err := json.Unmarshal(data, &ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

func (c *RedisCache) DeletePendingExtension(ctx context.Context, bookingID string) error {
	return c.client.Del(ctx, pendingExtensionKey(bookingID)).Err()
}

func bookingLockKey(bookingID string) string {
	return fmt.Sprintf("lock:booking:%s", bookingID)
}

func pendingExtensionKey(bookingID string) string {
	return fmt.Sprintf("pending-extension:booking:%s", bookingID)
}
