// Package redis backs the anonymous guest ledger with Redis. INCRBY gives
// the atomic adjustment the ledger contract requires without any
// application-side read-modify-write.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/filcuan/coin-engine/internal/app/storage"
)

const keyPrefix = "guest_coins:"

// GuestLedger implements storage.GuestLedgerStore over a Redis client.
type GuestLedger struct {
	client *redis.Client
	ttl    time.Duration
}

var _ storage.GuestLedgerStore = (*GuestLedger)(nil)

// NewGuestLedger wraps the client. A non-zero ttl bounds how long an
// abandoned device balance lingers; each adjustment refreshes it.
func NewGuestLedger(client *redis.Client, ttl time.Duration) *GuestLedger {
	return &GuestLedger{client: client, ttl: ttl}
}

func key(deviceID string) string { return keyPrefix + deviceID }

func (g *GuestLedger) GuestCoins(ctx context.Context, deviceID string) (int64, error) {
	v, err := g.client.Get(ctx, key(deviceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read guest balance: %w", err)
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}

func (g *GuestLedger) AdjustGuestCoins(ctx context.Context, deviceID string, delta int64) (int64, error) {
	k := key(deviceID)
	v, err := g.client.IncrBy(ctx, k, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("adjust guest balance: %w", err)
	}
	if v < 0 {
		// Negative balances are not representable; settle the key at zero.
		if err := g.client.Set(ctx, k, 0, g.ttl).Err(); err != nil {
			return 0, fmt.Errorf("clamp guest balance: %w", err)
		}
		return 0, nil
	}
	if g.ttl > 0 {
		if err := g.client.Expire(ctx, k, g.ttl).Err(); err != nil {
			return v, fmt.Errorf("refresh guest balance ttl: %w", err)
		}
	}
	return v, nil
}

func (g *GuestLedger) ClearGuestCoins(ctx context.Context, deviceID string) error {
	if err := g.client.Del(ctx, key(deviceID)).Err(); err != nil {
		return fmt.Errorf("clear guest balance: %w", err)
	}
	return nil
}
