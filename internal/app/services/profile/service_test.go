package profile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/filcuan/coin-engine/internal/app/services/profile"
	"github.com/filcuan/coin-engine/internal/app/storage/memory"
)

func TestRegister(t *testing.T) {
	svc := profile.New(memory.New(), nil)
	ctx := context.Background()

	p, err := svc.Register(ctx, "p1", "alex")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.Coins != 0 {
		t.Fatalf("coins = %d, want 0", p.Coins)
	}
	if p.DisplayName != "alex" {
		t.Fatalf("display name = %q, want username default", p.DisplayName)
	}
	if p.JoinedDate.IsZero() {
		t.Fatal("joined date must be set")
	}

	if _, err := svc.Register(ctx, "", "alex"); !errors.Is(err, profile.ErrInvalidInput) {
		t.Fatalf("register without id = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Register(ctx, "p2", "   "); !errors.Is(err, profile.ErrInvalidInput) {
		t.Fatalf("register with blank username = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateDisplay(t *testing.T) {
	store := memory.New()
	svc := profile.New(store, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "p1", "alex"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := store.AdjustCoins(ctx, "p1", 42); err != nil {
		t.Fatalf("seed coins: %v", err)
	}

	name := "Alex R"
	photo := "https://cdn.example/a.jpg"
	p, err := svc.UpdateDisplay(ctx, "p1", &name, &photo)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.DisplayName != "Alex R" || p.PhotoURL != photo {
		t.Fatalf("updated profile = %+v", p)
	}

	// A display update never moves the balance.
	if p.Coins != 42 {
		t.Fatalf("coins after update = %d, want 42", p.Coins)
	}

	// Nil pointers leave fields unchanged.
	p, err = svc.UpdateDisplay(ctx, "p1", nil, nil)
	if err != nil {
		t.Fatalf("no-op update: %v", err)
	}
	if p.DisplayName != "Alex R" {
		t.Fatalf("display name = %q after no-op update", p.DisplayName)
	}

	blank := "   "
	if _, err := svc.UpdateDisplay(ctx, "p1", &blank, nil); !errors.Is(err, profile.ErrInvalidInput) {
		t.Fatalf("blank display name = %v, want ErrInvalidInput", err)
	}
}
