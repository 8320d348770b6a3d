// Package rewards applies per-item interaction rewards: credit the remote
// balance, consume the catalog item, retire it from the session feed.
package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/metrics"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/services/session"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/pkg/logger"
)

var (
	// ErrItemUnavailable marks interactions against items no longer in the
	// session feed, including a second interaction racing the first.
	ErrItemUnavailable = errors.New("item not available in this session")
	// ErrInvalidKind rejects unknown interaction kinds.
	ErrInvalidKind = errors.New("invalid interaction kind")
)

// Result carries the outcome of a successful interaction. Balance is the
// authoritative value re-read from the profile store, never a locally
// computed increment, so a concurrent accrual credit is always reflected.
type Result struct {
	Item     content.Item
	Reward   int64
	Balance  int64
	FeedSize int
}

// Service processes interaction events.
type Service struct {
	profiles storage.ProfileStore
	catalog  storage.CatalogStore
	log      *logger.Logger
}

// New constructs the interaction reward processor.
func New(profiles storage.ProfileStore, catalog storage.CatalogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("rewards")
	}
	return &Service{profiles: profiles, catalog: catalog, log: log}
}

// Interact applies one like/download event for the session. Anonymous
// visitors earn only through the accrual clock; their interactions return
// ErrIdentityRequired so the caller can redirect to authentication.
//
// The network portion (credit, then catalog deletion) runs before the feed
// mutation: if it fails the item stays visible and unconsumed, so the
// visitor never watches an item disappear unpaid.
func (s *Service) Interact(ctx context.Context, sess *session.Session, itemID string, kind content.InteractionKind) (Result, error) {
	if !kind.Valid() {
		return Result{}, ErrInvalidKind
	}

	identity := sess.Identity()
	if identity.Anonymous() {
		return Result{}, ledger.ErrIdentityRequired
	}

	item, ok := sess.BeginInteraction(itemID)
	if !ok {
		return Result{}, ErrItemUnavailable
	}

	reward := kind.Reward()
	consumed := false
	defer func() {
		if !consumed {
			sess.FinishInteraction(itemID, false)
		}
	}()

	balance, err := s.profiles.AdjustCoins(ctx, identity.ID, reward)
	if err != nil {
		return Result{}, fmt.Errorf("credit interaction reward: %w", err)
	}

	// Every interaction consumes the item from the shared catalog, likes
	// included; the content is single-use across all visitors.
	if err := s.catalog.DeleteItem(ctx, itemID); err != nil {
		s.log.WithError(err).
			WithField("item_id", itemID).
			Warn("catalog deletion failed after credit")
		return Result{}, fmt.Errorf("consume catalog item: %w", err)
	}

	consumed = true
	sess.FinishInteraction(itemID, true)

	// Re-read the authoritative balance; an accrual tick may have landed
	// between the credit and now. The credit result is the fallback.
	if profile, err := s.profiles.GetProfile(ctx, identity.ID); err == nil {
		balance = profile.Coins
	} else {
		s.log.WithError(err).WithField("profile_id", identity.ID).Warn("balance refresh failed")
	}

	metrics.CountInteraction(string(kind))
	metrics.CountCredit(string(kind), reward)
	s.log.WithField("session_id", sess.ID()).
		WithField("item_id", itemID).
		WithField("kind", string(kind)).
		WithField("balance", balance).
		Info("interaction rewarded")

	return Result{
		Item:     item,
		Reward:   reward,
		Balance:  balance,
		FeedSize: sess.FeedSize(),
	}, nil
}
