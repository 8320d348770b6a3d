// Package ledger provides the active-ledger abstraction: one capability
// interface over the two places a visitor's coins can live, selected by the
// visitor's current identity. Call sites never branch on identity themselves.
package ledger

import (
	"context"
	"errors"

	"github.com/filcuan/coin-engine/internal/app/storage"
)

// ErrIdentityRequired marks operations that need an authenticated visitor.
// Handlers translate it into an authentication redirect, not a hard failure.
var ErrIdentityRequired = errors.New("authentication required")

// Ledger is the capability surface of whichever balance currently backs a
// visitor. Adjust applies a relative delta atomically at the backing store
// and returns the resulting balance.
type Ledger interface {
	Balance(ctx context.Context) (int64, error)
	Adjust(ctx context.Context, delta int64) (int64, error)
	Clear(ctx context.Context) error
}

// GuestLedger is the device-scoped balance of an anonymous visitor.
type GuestLedger struct {
	store    storage.GuestLedgerStore
	deviceID string
}

// NewGuestLedger binds a device ID to the guest ledger store.
func NewGuestLedger(store storage.GuestLedgerStore, deviceID string) *GuestLedger {
	return &GuestLedger{store: store, deviceID: deviceID}
}

func (g *GuestLedger) Balance(ctx context.Context) (int64, error) {
	return g.store.GuestCoins(ctx, g.deviceID)
}

func (g *GuestLedger) Adjust(ctx context.Context, delta int64) (int64, error) {
	return g.store.AdjustGuestCoins(ctx, g.deviceID, delta)
}

func (g *GuestLedger) Clear(ctx context.Context) error {
	return g.store.ClearGuestCoins(ctx, g.deviceID)
}

// ProfileLedger is the identity-scoped balance of an authenticated visitor.
type ProfileLedger struct {
	store     storage.ProfileStore
	profileID string
}

// NewProfileLedger binds a profile ID to the profile store.
func NewProfileLedger(store storage.ProfileStore, profileID string) *ProfileLedger {
	return &ProfileLedger{store: store, profileID: profileID}
}

func (p *ProfileLedger) Balance(ctx context.Context) (int64, error) {
	profile, err := p.store.GetProfile(ctx, p.profileID)
	if err != nil {
		return 0, err
	}
	return profile.Coins, nil
}

func (p *ProfileLedger) Adjust(ctx context.Context, delta int64) (int64, error) {
	return p.store.AdjustCoins(ctx, p.profileID, delta)
}

func (p *ProfileLedger) Clear(ctx context.Context) error {
	return p.store.SetCoins(ctx, p.profileID, 0)
}

// Selector picks the active ledger for a visitor at the moment of each
// operation. The choice must never be cached across a suspension point;
// a visitor can authenticate between an operation being scheduled and it
// firing.
type Selector struct {
	profiles storage.ProfileStore
	guests   storage.GuestLedgerStore
}

// NewSelector builds a selector over the two ledger stores.
func NewSelector(profiles storage.ProfileStore, guests storage.GuestLedgerStore) *Selector {
	return &Selector{profiles: profiles, guests: guests}
}

// ForVisitor returns the ledger backing the given visitor state: the profile
// ledger when profileID is set, otherwise the guest ledger for the device.
func (s *Selector) ForVisitor(profileID, deviceID string) Ledger {
	if profileID != "" {
		return NewProfileLedger(s.profiles, profileID)
	}
	return NewGuestLedger(s.guests, deviceID)
}

// Merge folds a device's pending guest balance into a profile balance and
// clears the device ledger. A zero guest balance is a no-op, which also makes
// re-running the merge after a completed one safe.
func (s *Selector) Merge(ctx context.Context, deviceID, profileID string) (int64, error) {
	pending, err := s.guests.GuestCoins(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	if pending <= 0 {
		profile, err := s.profiles.GetProfile(ctx, profileID)
		if err != nil {
			return 0, err
		}
		return profile.Coins, nil
	}

	merged, err := s.profiles.AdjustCoins(ctx, profileID, pending)
	if err != nil {
		return 0, err
	}
	if err := s.guests.ClearGuestCoins(ctx, deviceID); err != nil {
		return merged, err
	}
	return merged, nil
}
