// Package session tracks live visitor sessions: the identity currently
// backing the coin ledger, the per-session content feed, and the accrual
// clock bookkeeping. A session starts anonymous (device-scoped) and can make
// a single one-way transition to an authenticated profile.
package session

import (
	"sync"
	"time"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
)

// Session is the state of one visitor's app session. All methods are safe
// for concurrent use; the accrual clock and request handlers share it.
type Session struct {
	mu sync.Mutex

	id       string
	deviceID string
	identity visitor.Identity

	feed       []content.Item
	processing map[string]bool

	// mergeMu serializes the guest balance merge for this session so two
	// overlapping sign-in events cannot both read the pending balance
	// before either clears it.
	mergeMu      sync.Mutex
	mergePending bool

	openedAt      time.Time
	intervalStart time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// DeviceID returns the device key the anonymous ledger is scoped to.
func (s *Session) DeviceID() string { return s.deviceID }

// Identity returns the current visitor identity; the zero value while the
// session is anonymous.
func (s *Session) Identity() visitor.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Authenticated reports whether the session has signed in.
func (s *Session) Authenticated() bool {
	return !s.Identity().Anonymous()
}

// Feed returns a copy of the remaining session feed.
func (s *Session) Feed() []content.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]content.Item, len(s.feed))
	copy(out, s.feed)
	return out
}

// FeedSize returns the number of items still available for interaction.
func (s *Session) FeedSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.feed)
}

// BeginInteraction reserves an item for processing. It returns the item and
// false when the item is no longer in the feed or another interaction on it
// is already in flight. The item stays visible in the feed until
// FinishInteraction removes it, so a failed network call leaves the session
// view untouched.
func (s *Session) BeginInteraction(itemID string) (content.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processing[itemID] {
		return content.Item{}, false
	}
	for _, item := range s.feed {
		if item.ID == itemID {
			s.processing[itemID] = true
			return item, true
		}
	}
	return content.Item{}, false
}

// FinishInteraction releases the reservation taken by BeginInteraction and,
// when consumed is true, removes the item from the feed.
func (s *Session) FinishInteraction(itemID string, consumed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.processing, itemID)
	if !consumed {
		return
	}
	for i, item := range s.feed {
		if item.ID == itemID {
			s.feed = append(s.feed[:i], s.feed[i+1:]...)
			return
		}
	}
}

// AddToFeed appends a later-arriving item so accrual can resume without a
// session restart.
func (s *Session) AddToFeed(item content.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = append(s.feed, item)
}

// signIn installs the authenticated identity. It reports whether this call
// performed the anonymous-to-authenticated transition.
func (s *Session) signIn(id visitor.Identity) (transitioned bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.identity.Anonymous() {
		// Duplicate sign-in events for the same profile are a no-op;
		// switching profiles requires an explicit sign-out first.
		return false, s.identity.ID == id.ID
	}
	s.identity = id
	s.mergeMu.Lock()
	s.mergePending = true
	s.mergeMu.Unlock()
	return true, true
}

// beginMerge claims the session's pending guest merge. It returns false when
// no merge is owed (already completed by an earlier sign-in event); a true
// return holds the merge lock until endMerge is called, so a duplicate
// sign-in arriving mid-merge waits instead of double-crediting.
func (s *Session) beginMerge() bool {
	s.mergeMu.Lock()
	if !s.mergePending {
		s.mergeMu.Unlock()
		return false
	}
	return true
}

// endMerge releases the merge lock. A completed merge clears the pending
// flag; a failed one leaves it set so the next sign-in event retries.
func (s *Session) endMerge(completed bool) {
	if completed {
		s.mergePending = false
	}
	s.mergeMu.Unlock()
}

// signOut drops the identity, returning the session to anonymous mode.
func (s *Session) signOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = visitor.Identity{}
}

// AccrualElapsed returns how long the current accrual interval has been
// running at the given instant.
func (s *Session) AccrualElapsed(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.intervalStart)
}

// ResetAccrual starts a fresh accrual interval.
func (s *Session) ResetAccrual(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervalStart = now
}
