// Package accrual runs the passive reward timer: a fixed credit to the
// active ledger of every eligible session, once per interval, for as long as
// the session still has content to view.
package accrual

import (
	"context"
	"sync"
	"time"

	"github.com/filcuan/coin-engine/internal/app/metrics"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/services/session"
	"github.com/filcuan/coin-engine/internal/app/system"
	"github.com/filcuan/coin-engine/pkg/logger"
)

const (
	// DefaultInterval is the wall-clock period between passive credits.
	DefaultInterval = 10 * time.Second
	// DefaultReward is the coin credit applied at each interval.
	DefaultReward int64 = 1

	// resolution is how often the clock polls sessions for elapsed
	// intervals. It only bounds credit latency; the interval itself is
	// measured per session.
	resolution = 250 * time.Millisecond
)

var _ system.Service = (*Clock)(nil)

// Clock is the lifecycle-managed accrual timer. Sessions are re-read on
// every tick and the target ledger is selected at the moment an interval
// elapses, so a visitor who authenticates mid-interval is credited on the
// profile ledger, not the guest ledger the interval started on.
type Clock struct {
	sessions *session.Manager
	ledgers  *ledger.Selector
	log      *logger.Logger
	interval time.Duration
	reward   int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewClock creates an accrual clock with the default interval and reward.
func NewClock(sessions *session.Manager, ledgers *ledger.Selector, log *logger.Logger) *Clock {
	if log == nil {
		log = logger.NewDefault("accrual")
	}
	return &Clock{
		sessions: sessions,
		ledgers:  ledgers,
		log:      log,
		interval: DefaultInterval,
		reward:   DefaultReward,
	}
}

// WithInterval overrides the accrual interval. Call before Start.
func (c *Clock) WithInterval(d time.Duration) *Clock {
	if d > 0 {
		c.interval = d
	}
	return c
}

// WithReward overrides the per-interval credit. Call before Start.
func (c *Clock) WithReward(coins int64) *Clock {
	if coins > 0 {
		c.reward = coins
	}
	return c
}

// Interval returns the configured accrual interval.
func (c *Clock) Interval() time.Duration { return c.interval }

func (c *Clock) Name() string { return "accrual-clock" }

func (c *Clock) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(resolution)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				c.tick(runCtx)
			}
		}
	}()

	c.log.WithField("interval", c.interval.String()).Info("accrual clock started")
	return nil
}

// Stop halts the clock. When it returns, no further credit will land.
func (c *Clock) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.log.Info("accrual clock stopped")
	return nil
}

// Progress reports the session's progress toward its next credit as a
// fraction in [0,1). It resets to 0 the moment a credit interval elapses.
func (c *Clock) Progress(sess *session.Session) float64 {
	elapsed := sess.AccrualElapsed(time.Now())
	if elapsed <= 0 {
		return 0
	}
	frac := float64(elapsed) / float64(c.interval)
	if frac >= 1 {
		// The interval has elapsed but the tick has not fired yet.
		return 0
	}
	return frac
}

// tick credits every session whose interval has elapsed. One session's
// failure never blocks the others and never stops future ticks.
func (c *Clock) tick(ctx context.Context) {
	now := time.Now()
	for _, sess := range c.sessions.List() {
		if sess.AccrualElapsed(now) < c.interval {
			continue
		}
		// The interval restarts whether or not a credit applies, so an
		// empty feed skips the credit without freezing the timer.
		sess.ResetAccrual(now)

		if sess.FeedSize() == 0 {
			metrics.CountAccrualTick("skipped")
			continue
		}

		c.credit(ctx, sess)
	}
}

func (c *Clock) credit(ctx context.Context, sess *session.Session) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Ledger selection happens here, at fire time. A sign-in that landed
	// mid-interval directs this credit to the profile ledger.
	id := sess.Identity()
	target := c.ledgers.ForVisitor(id.ID, sess.DeviceID())

	balance, err := target.Adjust(ctx, c.reward)
	if err != nil {
		metrics.CountAccrualTick("failed")
		c.log.WithError(err).
			WithField("session_id", sess.ID()).
			Warn("accrual credit failed")
		return
	}

	metrics.CountAccrualTick("credited")
	metrics.CountCredit("accrual", c.reward)
	c.log.WithField("session_id", sess.ID()).
		WithField("balance", balance).
		Debugf("accrual credit applied (+%d)", c.reward)
}
