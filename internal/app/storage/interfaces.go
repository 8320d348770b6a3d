package storage

import (
	"context"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/domain/withdrawal"
)

// ProfileStore persists visitor profiles and their remote coin balance.
// AdjustCoins must apply the delta atomically at the store so concurrent
// accrual ticks and interaction credits never overwrite each other; it
// returns the resulting balance, clamped at zero.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p visitor.Profile) (visitor.Profile, error)
	UpdateProfile(ctx context.Context, p visitor.Profile) (visitor.Profile, error)
	GetProfile(ctx context.Context, id string) (visitor.Profile, error)

	AdjustCoins(ctx context.Context, id string, delta int64) (int64, error)
	SetCoins(ctx context.Context, id string, value int64) error
}

// GuestLedgerStore holds anonymous coin balances keyed by device ID.
// AdjustGuestCoins carries the same atomicity contract as AdjustCoins.
type GuestLedgerStore interface {
	GuestCoins(ctx context.Context, deviceID string) (int64, error)
	AdjustGuestCoins(ctx context.Context, deviceID string, delta int64) (int64, error)
	ClearGuestCoins(ctx context.Context, deviceID string) error
}

// CatalogStore persists the shared content catalog and its themes.
// ListItems returns items newest first.
type CatalogStore interface {
	UpsertItem(ctx context.Context, item content.Item) (content.Item, error)
	GetItem(ctx context.Context, id string) (content.Item, error)
	ListItems(ctx context.Context) ([]content.Item, error)
	DeleteItem(ctx context.Context, id string) error

	UpsertTheme(ctx context.Context, theme content.Theme) (content.Theme, error)
	ListThemes(ctx context.Context) ([]content.Theme, error)
	DeleteTheme(ctx context.Context, id string) error
}

// WithdrawalStore persists cash-out requests. ListUnclearedRequests feeds
// the reconciler that completes interrupted balance clears.
type WithdrawalStore interface {
	CreateRequest(ctx context.Context, req withdrawal.Request) (withdrawal.Request, error)
	UpdateRequest(ctx context.Context, req withdrawal.Request) (withdrawal.Request, error)
	GetRequest(ctx context.Context, id string) (withdrawal.Request, error)
	ListRequests(ctx context.Context) ([]withdrawal.Request, error)
	ListUnclearedRequests(ctx context.Context) ([]withdrawal.Request, error)
}
