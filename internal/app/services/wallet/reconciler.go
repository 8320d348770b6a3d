package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/filcuan/coin-engine/internal/app/domain/withdrawal"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/internal/app/system"
	"github.com/filcuan/coin-engine/pkg/logger"
)

// DefaultSweepSpec runs the reconciliation sweep once a minute.
const DefaultSweepSpec = "@every 1m"

var _ system.Service = (*Reconciler)(nil)

// Reconciler sweeps withdrawal requests whose balance clear never committed
// and completes them. A request left uncleared means the process died (or
// the store failed) between recording the request and zeroing the balance;
// completing the clear is always safe because the recorded amount already
// captured the full converted balance.
type Reconciler struct {
	profiles    storage.ProfileStore
	withdrawals storage.WithdrawalStore
	log         *logger.Logger
	spec        string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewReconciler builds the sweep job with the default schedule.
func NewReconciler(profiles storage.ProfileStore, withdrawals storage.WithdrawalStore, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("wallet-reconciler")
	}
	return &Reconciler{
		profiles:    profiles,
		withdrawals: withdrawals,
		log:         log,
		spec:        DefaultSweepSpec,
	}
}

// WithSchedule overrides the cron spec. Call before Start.
func (r *Reconciler) WithSchedule(spec string) *Reconciler {
	if spec != "" {
		r.spec = spec
	}
	return r
}

func (r *Reconciler) Name() string { return "wallet-reconciler" }

func (r *Reconciler) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.Sweep(ctx)
	}); err != nil {
		return err
	}
	c.Start()

	r.cron = c
	r.running = true
	r.log.WithField("schedule", r.spec).Info("withdrawal reconciler started")
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	c := r.cron
	r.cron = nil
	r.running = false
	r.mu.Unlock()

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("withdrawal reconciler stopped")
	return nil
}

// Sweep completes every uncleared request it can. Errors on one request are
// logged and never block the rest of the sweep.
func (r *Reconciler) Sweep(ctx context.Context) {
	reqs, err := r.withdrawals.ListUnclearedRequests(ctx)
	if err != nil {
		r.log.WithError(err).Warn("list uncleared withdrawals failed")
		return
	}

	for _, req := range reqs {
		if err := r.complete(ctx, req); err != nil {
			r.log.WithError(err).
				WithField("request_id", req.ID).
				Warn("withdrawal reconciliation failed")
		}
	}
}

func (r *Reconciler) complete(ctx context.Context, req withdrawal.Request) error {
	if err := r.profiles.SetCoins(ctx, req.ProfileID, 0); err != nil {
		return err
	}
	req.BalanceCleared = true
	if _, err := r.withdrawals.UpdateRequest(ctx, req); err != nil {
		return err
	}
	r.log.WithField("request_id", req.ID).
		WithField("profile_id", req.ProfileID).
		Info("interrupted withdrawal reconciled")
	return nil
}
