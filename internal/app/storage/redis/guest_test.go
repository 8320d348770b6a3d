package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

func TestGuestLedgerIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	ledger := NewGuestLedger(client, time.Hour)
	deviceID := "it-" + uuid.NewString()

	balance, err := ledger.GuestCoins(ctx, deviceID)
	if err != nil {
		t.Fatalf("guest coins: %v", err)
	}
	if balance != 0 {
		t.Fatalf("fresh device balance = %d, want 0", balance)
	}

	balance, err = ledger.AdjustGuestCoins(ctx, deviceID, 7)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if balance != 7 {
		t.Fatalf("balance = %d, want 7", balance)
	}

	// Over-debit clamps at zero.
	balance, err = ledger.AdjustGuestCoins(ctx, deviceID, -100)
	if err != nil {
		t.Fatalf("over-debit: %v", err)
	}
	if balance != 0 {
		t.Fatalf("clamped balance = %d, want 0", balance)
	}

	if _, err := ledger.AdjustGuestCoins(ctx, deviceID, 3); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := ledger.ClearGuestCoins(ctx, deviceID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	balance, err = ledger.GuestCoins(ctx, deviceID)
	if err != nil {
		t.Fatalf("guest coins after clear: %v", err)
	}
	if balance != 0 {
		t.Fatalf("balance after clear = %d, want 0", balance)
	}
}
