package rewards_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/services/rewards"
	"github.com/filcuan/coin-engine/internal/app/services/session"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/internal/app/storage/memory"
)

type fixture struct {
	store    *memory.Store
	sessions *session.Manager
	svc      *rewards.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	sel := ledger.NewSelector(store, store)
	return &fixture{
		store:    store,
		sessions: session.NewManager(store, store, sel, nil),
		svc:      rewards.New(store, store, nil),
	}
}

func (f *fixture) seedProfile(t *testing.T, id string, coins int64) visitor.Identity {
	t.Helper()
	p, err := f.store.CreateProfile(context.Background(), visitor.Profile{
		ID:         id,
		Username:   id,
		JoinedDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if coins > 0 {
		if _, err := f.store.AdjustCoins(context.Background(), id, coins); err != nil {
			t.Fatalf("seed coins: %v", err)
		}
	}
	return p.Identity()
}

func (f *fixture) seedItems(t *testing.T, n int) []content.Item {
	t.Helper()
	out := make([]content.Item, 0, n)
	for i := 0; i < n; i++ {
		item, err := f.store.UpsertItem(context.Background(), content.Item{
			Title:    "item",
			MediaURL: "https://cdn.example/i.jpg",
		})
		if err != nil {
			t.Fatalf("seed item: %v", err)
		}
		out = append(out, item)
	}
	return out
}

func (f *fixture) openAuthed(t *testing.T, id visitor.Identity) *session.Session {
	t.Helper()
	sess, err := f.sessions.Open(context.Background(), "dev1", id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return sess
}

func TestInteractRewardsByKind(t *testing.T) {
	cases := []struct {
		kind   content.InteractionKind
		reward int64
	}{
		{content.InteractionLike, 1},
		{content.InteractionDownload, 2},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			f := newFixture(t)
			id := f.seedProfile(t, "p1", 10)
			items := f.seedItems(t, 2)
			sess := f.openAuthed(t, id)

			result, err := f.svc.Interact(context.Background(), sess, items[0].ID, tc.kind)
			if err != nil {
				t.Fatalf("interact: %v", err)
			}
			if result.Reward != tc.reward {
				t.Fatalf("reward = %d, want %d", result.Reward, tc.reward)
			}
			if result.Balance != 10+tc.reward {
				t.Fatalf("balance = %d, want %d", result.Balance, 10+tc.reward)
			}
			if result.FeedSize != 1 {
				t.Fatalf("feed size = %d, want 1", result.FeedSize)
			}
		})
	}
}

func TestInteractReportsFeedSizeAfterRemoval(t *testing.T) {
	f := newFixture(t)
	id := f.seedProfile(t, "p1", 0)
	items := f.seedItems(t, 2)
	sess := f.openAuthed(t, id)

	result, err := f.svc.Interact(context.Background(), sess, items[0].ID, content.InteractionLike)
	if err != nil {
		t.Fatalf("interact: %v", err)
	}

	// The result carries the feed size with the consumed item already gone.
	if result.FeedSize != sess.FeedSize() {
		t.Fatalf("result feed size = %d, session feed size = %d", result.FeedSize, sess.FeedSize())
	}
	if result.FeedSize != 1 {
		t.Fatalf("feed size = %d, want 1", result.FeedSize)
	}
}

func TestInteractConsumesCatalogItem(t *testing.T) {
	f := newFixture(t)
	id := f.seedProfile(t, "p1", 0)
	items := f.seedItems(t, 1)
	sess := f.openAuthed(t, id)
	ctx := context.Background()

	// Likes consume the item just as downloads do; content is single-use.
	if _, err := f.svc.Interact(ctx, sess, items[0].ID, content.InteractionLike); err != nil {
		t.Fatalf("interact: %v", err)
	}
	if _, err := f.store.GetItem(ctx, items[0].ID); err == nil {
		t.Fatal("item still in catalog after interaction")
	}
}

func TestInteractAnonymousRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	items := f.seedItems(t, 1)
	sess, err := f.sessions.Open(context.Background(), "dev1", visitor.Identity{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	_, err = f.svc.Interact(context.Background(), sess, items[0].ID, content.InteractionLike)
	if !errors.Is(err, ledger.ErrIdentityRequired) {
		t.Fatalf("anonymous interact = %v, want ErrIdentityRequired", err)
	}

	// No credit lands anywhere and the item stays in the feed.
	if balance, _ := f.store.GuestCoins(context.Background(), "dev1"); balance != 0 {
		t.Fatalf("guest balance = %d, want 0", balance)
	}
	if sess.FeedSize() != 1 {
		t.Fatalf("feed size = %d, want 1", sess.FeedSize())
	}
}

func TestInteractInvalidKind(t *testing.T) {
	f := newFixture(t)
	id := f.seedProfile(t, "p1", 0)
	items := f.seedItems(t, 1)
	sess := f.openAuthed(t, id)

	_, err := f.svc.Interact(context.Background(), sess, items[0].ID, content.InteractionKind("share"))
	if !errors.Is(err, rewards.ErrInvalidKind) {
		t.Fatalf("invalid kind = %v, want ErrInvalidKind", err)
	}
}

func TestInteractUnknownItem(t *testing.T) {
	f := newFixture(t)
	id := f.seedProfile(t, "p1", 0)
	f.seedItems(t, 1)
	sess := f.openAuthed(t, id)

	_, err := f.svc.Interact(context.Background(), sess, "missing", content.InteractionLike)
	if !errors.Is(err, rewards.ErrItemUnavailable) {
		t.Fatalf("unknown item = %v, want ErrItemUnavailable", err)
	}
}

// failingCatalog rejects deletions to exercise the partial-failure path.
type failingCatalog struct {
	storage.CatalogStore
}

func (f *failingCatalog) DeleteItem(context.Context, string) error {
	return errors.New("catalog unavailable")
}

func TestInteractDeleteFailureKeepsItemInFeed(t *testing.T) {
	store := memory.New()
	sel := ledger.NewSelector(store, store)
	sessions := session.NewManager(store, store, sel, nil)
	svc := rewards.New(store, &failingCatalog{CatalogStore: store}, nil)
	ctx := context.Background()

	p, err := store.CreateProfile(ctx, visitor.Profile{ID: "p1", Username: "p1"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	item, err := store.UpsertItem(ctx, content.Item{Title: "item", MediaURL: "https://cdn.example/i.jpg"})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	sess, err := sessions.Open(ctx, "dev1", p.Identity())
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := svc.Interact(ctx, sess, item.ID, content.InteractionLike); err == nil {
		t.Fatal("expected error when catalog deletion fails")
	}

	// The item stays visible and reservable; the visitor can retry.
	if sess.FeedSize() != 1 {
		t.Fatalf("feed size = %d, want 1", sess.FeedSize())
	}
	if _, ok := sess.BeginInteraction(item.ID); !ok {
		t.Fatal("item must be reservable after a failed interaction")
	}
}

func TestInteractConcurrentWithAccrualCredit(t *testing.T) {
	f := newFixture(t)
	id := f.seedProfile(t, "p1", 100)
	items := f.seedItems(t, 1)
	sess := f.openAuthed(t, id)
	ctx := context.Background()

	// A download and an accrual credit race; both are relative adjustments
	// at the store, so neither overwrites the other.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := f.svc.Interact(ctx, sess, items[0].ID, content.InteractionDownload); err != nil {
			t.Errorf("interact: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := f.store.AdjustCoins(ctx, "p1", 1); err != nil {
			t.Errorf("adjust: %v", err)
		}
	}()
	wg.Wait()

	profile, err := f.store.GetProfile(ctx, "p1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.Coins != 103 {
		t.Fatalf("balance = %d, want 103", profile.Coins)
	}
}
