// Package wallet implements the withdrawal gate: eligibility checks, the
// two-step request-then-clear cash-out, and admin review of recorded
// requests.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filcuan/coin-engine/internal/app/domain/withdrawal"
	"github.com/filcuan/coin-engine/internal/app/metrics"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/services/session"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/pkg/logger"
)

var (
	// ErrWindowClosed rejects withdrawals outside the fixed day-of-month.
	ErrWindowClosed = fmt.Errorf("withdrawals open only on day %d of the month", withdrawal.WithdrawalDay)
	// ErrBelowMinimum rejects converted balances under the payout floor.
	ErrBelowMinimum = fmt.Errorf("converted balance below the Rp %d minimum", withdrawal.MinimumIDR)
	// ErrNotPending rejects admin review of already-settled requests.
	ErrNotPending = errors.New("withdrawal request is not pending")
	// ErrInvalidStatus rejects unknown review verdicts.
	ErrInvalidStatus = errors.New("invalid withdrawal status")
)

// InconsistentStateError reports a withdrawal whose request was recorded but
// whose balance clear failed. It must never be swallowed or silently
// retried; the recorded request is the anchor for manual or reconciler-led
// repair.
type InconsistentStateError struct {
	RequestID string
	Cause     error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("withdrawal request %s recorded but balance clear failed: %v", e.RequestID, e.Cause)
}

func (e *InconsistentStateError) Unwrap() error { return e.Cause }

// Service evaluates withdrawal eligibility and records cash-outs.
type Service struct {
	profiles    storage.ProfileStore
	withdrawals storage.WithdrawalStore
	log         *logger.Logger
	now         func() time.Time
}

// New constructs the withdrawal gate. The clock defaults to time.Now and is
// injectable for tests.
func New(profiles storage.ProfileStore, withdrawals storage.WithdrawalStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Service{
		profiles:    profiles,
		withdrawals: withdrawals,
		log:         log,
		now:         time.Now,
	}
}

// WithClock overrides the wall clock used for the day-of-month gate.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Withdraw runs the gate for the session's visitor. On success the pending
// request is recorded, the remote balance is zeroed, and the request is
// returned. If the balance clear fails after the request was recorded, the
// returned error is an *InconsistentStateError.
func (s *Service) Withdraw(ctx context.Context, sess *session.Session) (withdrawal.Request, error) {
	identity := sess.Identity()
	if identity.Anonymous() {
		metrics.CountWithdrawal("identity_required")
		return withdrawal.Request{}, ledger.ErrIdentityRequired
	}

	if s.now().Day() != withdrawal.WithdrawalDay {
		metrics.CountWithdrawal("window_closed")
		return withdrawal.Request{}, ErrWindowClosed
	}

	profile, err := s.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		metrics.CountWithdrawal("store_error")
		return withdrawal.Request{}, fmt.Errorf("read balance: %w", err)
	}

	amount := withdrawal.Convert(profile.Coins)
	if amount < withdrawal.MinimumIDR {
		metrics.CountWithdrawal("below_minimum")
		return withdrawal.Request{}, ErrBelowMinimum
	}

	req, err := s.withdrawals.CreateRequest(ctx, withdrawal.Request{
		ProfileID: identity.ID,
		Username:  profile.Username,
		AmountIDR: amount,
		Method:    withdrawal.DefaultMethod,
		Status:    withdrawal.StatusPending,
	})
	if err != nil {
		// Nothing was recorded; the balance is untouched.
		metrics.CountWithdrawal("store_error")
		return withdrawal.Request{}, fmt.Errorf("record withdrawal request: %w", err)
	}

	if err := s.profiles.SetCoins(ctx, identity.ID, 0); err != nil {
		metrics.CountWithdrawal("inconsistent")
		s.log.WithError(err).
			WithField("request_id", req.ID).
			WithField("profile_id", identity.ID).
			Error("balance clear failed after request creation")
		return req, &InconsistentStateError{RequestID: req.ID, Cause: err}
	}

	marked := req
	marked.BalanceCleared = true
	if updated, uerr := s.withdrawals.UpdateRequest(ctx, marked); uerr != nil {
		// The visitor-visible outcome is already correct; the clear marker
		// is only reconciler bookkeeping. The sweep will converge it.
		s.log.WithError(uerr).
			WithField("request_id", req.ID).
			Warn("marking balance clear failed")
	} else {
		req = updated
	}

	metrics.CountWithdrawal("accepted")
	s.log.WithField("request_id", req.ID).
		WithField("username", req.Username).
		WithField("amount_idr", req.AmountIDR).
		Info("withdrawal request recorded")
	return req, nil
}

// ListRequests returns all recorded requests, newest first. Admin surface.
func (s *Service) ListRequests(ctx context.Context) ([]withdrawal.Request, error) {
	return s.withdrawals.ListRequests(ctx)
}

// Review applies an admin verdict. Only pending requests move, and only to
// approved or rejected; both verdict states are terminal.
func (s *Service) Review(ctx context.Context, requestID string, verdict withdrawal.Status) (withdrawal.Request, error) {
	if verdict != withdrawal.StatusApproved && verdict != withdrawal.StatusRejected {
		return withdrawal.Request{}, ErrInvalidStatus
	}

	req, err := s.withdrawals.GetRequest(ctx, requestID)
	if err != nil {
		return withdrawal.Request{}, err
	}
	if req.Status != withdrawal.StatusPending {
		return withdrawal.Request{}, ErrNotPending
	}

	req.Status = verdict
	req, err = s.withdrawals.UpdateRequest(ctx, req)
	if err != nil {
		return withdrawal.Request{}, err
	}

	s.log.WithField("request_id", req.ID).
		WithField("status", string(req.Status)).
		Info("withdrawal request reviewed")
	return req, nil
}
