package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/domain/withdrawal"
	"github.com/filcuan/coin-engine/internal/platform/migrations"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := migrations.Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	profileID := uuid.NewString()

	p, err := store.CreateProfile(ctx, visitor.Profile{ID: profileID, Username: "it-" + profileID[:8]})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if p.Coins != 0 {
		t.Fatalf("new profile coins = %d, want 0", p.Coins)
	}

	balance, err := store.AdjustCoins(ctx, profileID, 250)
	if err != nil {
		t.Fatalf("adjust coins: %v", err)
	}
	if balance != 250 {
		t.Fatalf("balance = %d, want 250", balance)
	}

	// Over-debit clamps at zero rather than going negative.
	balance, err = store.AdjustCoins(ctx, profileID, -1000)
	if err != nil {
		t.Fatalf("over-debit: %v", err)
	}
	if balance != 0 {
		t.Fatalf("clamped balance = %d, want 0", balance)
	}

	item, err := store.UpsertItem(ctx, content.Item{
		Title:    "integration item",
		MediaURL: "https://cdn.example/it.jpg",
		Tags:     []string{"test", "integration"},
	})
	if err != nil {
		t.Fatalf("upsert item: %v", err)
	}

	fetched, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if len(fetched.Tags) != 2 {
		t.Fatalf("tags = %v, want 2 entries", fetched.Tags)
	}

	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if _, err := store.GetItem(ctx, item.ID); err == nil {
		t.Fatal("item still present after delete")
	}

	req, err := store.CreateRequest(ctx, withdrawal.Request{
		ProfileID: profileID,
		Username:  p.Username,
		AmountIDR: 10000,
		Method:    withdrawal.DefaultMethod,
		Status:    withdrawal.StatusPending,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	uncleared, err := store.ListUnclearedRequests(ctx)
	if err != nil {
		t.Fatalf("list uncleared: %v", err)
	}
	found := false
	for _, r := range uncleared {
		if r.ID == req.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("new request missing from uncleared list")
	}

	req.BalanceCleared = true
	req.Status = withdrawal.StatusApproved
	if _, err := store.UpdateRequest(ctx, req); err != nil {
		t.Fatalf("update request: %v", err)
	}

	final, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if final.Status != withdrawal.StatusApproved || !final.BalanceCleared {
		t.Fatalf("final request = %+v, want approved and cleared", final)
	}
}
