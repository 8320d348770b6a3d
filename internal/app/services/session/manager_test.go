package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/services/session"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/internal/app/storage/memory"
)

func newManager(t *testing.T) (*session.Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	sel := ledger.NewSelector(store, store)
	return session.NewManager(store, store, sel, nil), store
}

func seedProfile(t *testing.T, store *memory.Store, id string, coins int64) visitor.Identity {
	t.Helper()
	p, err := store.CreateProfile(context.Background(), visitor.Profile{
		ID:         id,
		Username:   id,
		JoinedDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if coins > 0 {
		if _, err := store.AdjustCoins(context.Background(), id, coins); err != nil {
			t.Fatalf("seed coins: %v", err)
		}
	}
	return p.Identity()
}

func seedItems(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := store.UpsertItem(context.Background(), content.Item{
			Title:    "item",
			MediaURL: "https://cdn.example/i.jpg",
		})
		if err != nil {
			t.Fatalf("seed item: %v", err)
		}
	}
}

func TestOpenSnapshotsFeed(t *testing.T) {
	mgr, store := newManager(t)
	seedItems(t, store, 3)

	sess, err := mgr.Open(context.Background(), "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if sess.FeedSize() != 3 {
		t.Fatalf("feed size = %d, want 3", sess.FeedSize())
	}
	if sess.Authenticated() {
		t.Fatal("new session without identity must be anonymous")
	}

	// The feed is a snapshot; a later catalog addition does not appear.
	seedItems(t, store, 1)
	if sess.FeedSize() != 3 {
		t.Fatalf("feed size after catalog change = %d, want 3", sess.FeedSize())
	}
}

func TestOpenRequiresDeviceID(t *testing.T) {
	mgr, _ := newManager(t)
	if _, err := mgr.Open(context.Background(), "", visitor.Identity{}); err == nil {
		t.Fatal("expected error for missing device id")
	}
}

func TestOpenAuthenticatedMergesGuestBalance(t *testing.T) {
	mgr, store := newManager(t)
	ctx := context.Background()
	id := seedProfile(t, store, "p1", 10)
	if _, err := store.AdjustGuestCoins(ctx, "dev1", 5); err != nil {
		t.Fatalf("seed guest coins: %v", err)
	}

	sess, err := mgr.Open(ctx, "dev1", id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	balance, err := mgr.Balance(ctx, sess.ID())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 15 {
		t.Fatalf("post-merge balance = %d, want 15", balance)
	}
}

func TestSignInMergesExactlyOnce(t *testing.T) {
	mgr, store := newManager(t)
	ctx := context.Background()
	id := seedProfile(t, store, "p1", 0)
	if _, err := store.AdjustGuestCoins(ctx, "dev1", 50); err != nil {
		t.Fatalf("seed guest coins: %v", err)
	}

	sess, err := mgr.Open(ctx, "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	balance, err := mgr.SignIn(ctx, sess.ID(), id)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if balance != 50 {
		t.Fatalf("post-merge balance = %d, want 50", balance)
	}

	// A duplicate sign-in event for the same profile is a no-op read.
	balance, err = mgr.SignIn(ctx, sess.ID(), id)
	if err != nil {
		t.Fatalf("duplicate sign in: %v", err)
	}
	if balance != 50 {
		t.Fatalf("balance after duplicate sign in = %d, want 50", balance)
	}
}

// slowGuests widens the window between the guest balance read and its clear.
type slowGuests struct {
	storage.GuestLedgerStore
	delay time.Duration
}

func (s *slowGuests) GuestCoins(ctx context.Context, deviceID string) (int64, error) {
	time.Sleep(s.delay)
	return s.GuestLedgerStore.GuestCoins(ctx, deviceID)
}

func TestSignInConcurrentDuplicatesMergeOnce(t *testing.T) {
	store := memory.New()
	sel := ledger.NewSelector(store, &slowGuests{GuestLedgerStore: store, delay: 50 * time.Millisecond})
	mgr := session.NewManager(store, store, sel, nil)
	ctx := context.Background()

	id := seedProfile(t, store, "p1", 0)
	if _, err := store.AdjustGuestCoins(ctx, "dev1", 50); err != nil {
		t.Fatalf("seed guest coins: %v", err)
	}
	sess, err := mgr.Open(ctx, "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Two overlapping sign-in events for the same profile; the pending
	// guest balance must be credited exactly once.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.SignIn(ctx, sess.ID(), id); err != nil {
				t.Errorf("sign in: %v", err)
			}
		}()
	}
	wg.Wait()

	profile, err := store.GetProfile(ctx, "p1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Coins != 50 {
		t.Fatalf("balance after concurrent sign in = %d, want 50", profile.Coins)
	}
	if pending, _ := store.GuestCoins(ctx, "dev1"); pending != 0 {
		t.Fatalf("guest balance after merge = %d, want 0", pending)
	}
}

func TestSignInRejectsProfileSwitch(t *testing.T) {
	mgr, store := newManager(t)
	ctx := context.Background()
	first := seedProfile(t, store, "p1", 0)
	second := seedProfile(t, store, "p2", 0)

	sess, err := mgr.Open(ctx, "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := mgr.SignIn(ctx, sess.ID(), first); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if _, err := mgr.SignIn(ctx, sess.ID(), second); !errors.Is(err, session.ErrAlreadyAuthenticated) {
		t.Fatalf("sign in with other profile = %v, want ErrAlreadyAuthenticated", err)
	}
}

func TestSignInAnonymousIdentityRejected(t *testing.T) {
	mgr, _ := newManager(t)
	sess, err := mgr.Open(context.Background(), "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := mgr.SignIn(context.Background(), sess.ID(), visitor.Identity{}); !errors.Is(err, ledger.ErrIdentityRequired) {
		t.Fatalf("sign in anonymous = %v, want ErrIdentityRequired", err)
	}
}

func TestSignOutReturnsToGuestLedger(t *testing.T) {
	mgr, store := newManager(t)
	ctx := context.Background()
	id := seedProfile(t, store, "p1", 30)

	sess, err := mgr.Open(ctx, "dev1", id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := mgr.SignOut(sess.ID()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if sess.Authenticated() {
		t.Fatal("session still authenticated after sign out")
	}

	// Balance reads now come from the empty guest ledger.
	balance, err := mgr.Balance(ctx, sess.ID())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("guest balance after sign out = %d, want 0", balance)
	}
}

func TestCloseRemovesSession(t *testing.T) {
	mgr, _ := newManager(t)
	sess, err := mgr.Open(context.Background(), "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	mgr.Close(sess.ID())
	if _, err := mgr.Get(sess.ID()); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("get after close = %v, want ErrNotFound", err)
	}
	if n := len(mgr.List()); n != 0 {
		t.Fatalf("live sessions after close = %d, want 0", n)
	}
}

func TestBeginInteractionReservesItem(t *testing.T) {
	mgr, store := newManager(t)
	seedItems(t, store, 1)

	sess, err := mgr.Open(context.Background(), "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	itemID := sess.Feed()[0].ID

	if _, ok := sess.BeginInteraction(itemID); !ok {
		t.Fatal("first reservation must succeed")
	}
	if _, ok := sess.BeginInteraction(itemID); ok {
		t.Fatal("second reservation on an in-flight item must fail")
	}

	// An abandoned interaction leaves the item in the feed.
	sess.FinishInteraction(itemID, false)
	if sess.FeedSize() != 1 {
		t.Fatalf("feed size after abandoned interaction = %d, want 1", sess.FeedSize())
	}
	if _, ok := sess.BeginInteraction(itemID); !ok {
		t.Fatal("item must be reservable again after abandonment")
	}

	sess.FinishInteraction(itemID, true)
	if sess.FeedSize() != 0 {
		t.Fatalf("feed size after consumption = %d, want 0", sess.FeedSize())
	}
}
