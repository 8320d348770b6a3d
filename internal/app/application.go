package app

import (
	"context"
	"fmt"
	"time"

	"github.com/filcuan/coin-engine/internal/app/services/accrual"
	"github.com/filcuan/coin-engine/internal/app/services/catalog"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/services/profile"
	"github.com/filcuan/coin-engine/internal/app/services/rewards"
	"github.com/filcuan/coin-engine/internal/app/services/session"
	"github.com/filcuan/coin-engine/internal/app/services/wallet"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/internal/app/storage/memory"
	"github.com/filcuan/coin-engine/internal/app/system"
	"github.com/filcuan/coin-engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Profiles    storage.ProfileStore
	Guests      storage.GuestLedgerStore
	Catalog     storage.CatalogStore
	Withdrawals storage.WithdrawalStore
}

// Options tunes the reward engine. Zero values keep the defaults.
type Options struct {
	AccrualInterval time.Duration
	AccrualReward   int64
}

// Application ties the coin engine services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Sessions   *session.Manager
	Ledgers    *ledger.Selector
	Accrual    *accrual.Clock
	Rewards    *rewards.Service
	Wallet     *wallet.Service
	Catalog    *catalog.Service
	Profiles   *profile.Service
	Reconciler *wallet.Reconciler
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Profiles == nil {
		stores.Profiles = mem
	}
	if stores.Guests == nil {
		stores.Guests = mem
	}
	if stores.Catalog == nil {
		stores.Catalog = mem
	}
	if stores.Withdrawals == nil {
		stores.Withdrawals = mem
	}

	manager := system.NewManager()

	ledgers := ledger.NewSelector(stores.Profiles, stores.Guests)
	sessions := session.NewManager(stores.Catalog, stores.Profiles, ledgers, log)
	clock := accrual.NewClock(sessions, ledgers, log).
		WithInterval(opts.AccrualInterval).
		WithReward(opts.AccrualReward)
	rewardSvc := rewards.New(stores.Profiles, stores.Catalog, log)
	walletSvc := wallet.New(stores.Profiles, stores.Withdrawals, log)
	catalogSvc := catalog.New(stores.Catalog, log)
	profileSvc := profile.New(stores.Profiles, log)
	reconciler := wallet.NewReconciler(stores.Profiles, stores.Withdrawals, log)

	for _, svc := range []system.Service{clock, reconciler} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Sessions:   sessions,
		Ledgers:    ledgers,
		Accrual:    clock,
		Rewards:    rewardSvc,
		Wallet:     walletSvc,
		Catalog:    catalogSvc,
		Profiles:   profileSvc,
		Reconciler: reconciler,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
