package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/services/ledger"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/pkg/logger"
)

var (
	// ErrNotFound marks lookups of closed or unknown sessions.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyAuthenticated rejects a second sign-in with a different
	// profile; the transition is one-way until an explicit sign-out.
	ErrAlreadyAuthenticated = errors.New("session already authenticated")
)

// Manager owns the registry of live sessions and the identity transitions
// that move a visitor's coins between ledgers.
type Manager struct {
	catalog  storage.CatalogStore
	profiles storage.ProfileStore
	ledgers  *ledger.Selector
	log      *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a session manager over the catalog and ledger stores.
func NewManager(catalog storage.CatalogStore, profiles storage.ProfileStore, ledgers *ledger.Selector, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("session")
	}
	return &Manager{
		catalog:  catalog,
		profiles: profiles,
		ledgers:  ledgers,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session for a device, snapshotting the current catalog as
// the session feed. When the visitor is already authenticated (a bearer
// token accompanied the open call), the guest merge runs before the session
// becomes visible so the first balance read is post-merge.
func (m *Manager) Open(ctx context.Context, deviceID string, identity visitor.Identity) (*Session, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	items, err := m.catalog.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot feed: %w", err)
	}

	now := time.Now()
	sess := &Session{
		id:            uuid.NewString(),
		deviceID:      deviceID,
		identity:      identity,
		feed:          items,
		processing:    make(map[string]bool),
		openedAt:      now,
		intervalStart: now,
	}

	if !identity.Anonymous() {
		if _, err := m.ledgers.Merge(ctx, deviceID, identity.ID); err != nil {
			return nil, fmt.Errorf("merge guest balance: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	m.log.WithField("session_id", sess.id).
		WithField("feed_size", len(items)).
		WithField("authenticated", !identity.Anonymous()).
		Info("session opened")
	return sess, nil
}

// Get returns a live session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// List returns every live session. The accrual clock iterates this on each
// tick rather than capturing sessions at start time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Close ends a session. Once removed the accrual clock can no longer see it,
// so no further credit lands for this session.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.log.WithField("session_id", id).Info("session closed")
	}
}

// SignIn performs the anonymous-to-authenticated transition: it installs the
// identity, folds any pending guest balance into the profile, and returns the
// post-merge balance. The merge runs exactly once per transition; duplicate
// sign-in events are a safe no-op that just re-reads the balance.
func (m *Manager) SignIn(ctx context.Context, sessionID string, identity visitor.Identity) (int64, error) {
	if identity.Anonymous() {
		return 0, ledger.ErrIdentityRequired
	}
	sess, err := m.Get(sessionID)
	if err != nil {
		return 0, err
	}

	transitioned, ok := sess.signIn(identity)
	if !ok {
		return 0, ErrAlreadyAuthenticated
	}

	if sess.beginMerge() {
		merged, err := m.ledgers.Merge(ctx, sess.DeviceID(), identity.ID)
		sess.endMerge(err == nil)
		if err != nil {
			// The identity switch stands; the pending guest coins stay on
			// the device and the next sign-in event retries the merge.
			m.log.WithError(err).
				WithField("session_id", sessionID).
				Warn("guest balance merge failed")
			return 0, err
		}
		if transitioned {
			m.log.WithField("session_id", sessionID).
				WithField("profile_id", identity.ID).
				Info("session authenticated")
		}
		return merged, nil
	}

	// The merge already completed; a duplicate sign-in event just re-reads
	// the profile balance.
	profile, err := m.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		return 0, err
	}
	return profile.Coins, nil
}

// SignOut returns the session to anonymous mode.
func (m *Manager) SignOut(sessionID string) error {
	sess, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	sess.signOut()
	m.log.WithField("session_id", sessionID).Info("session signed out")
	return nil
}

// Balance reads the balance of whichever ledger currently backs the session.
func (m *Manager) Balance(ctx context.Context, sessionID string) (int64, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return 0, err
	}
	id := sess.Identity()
	return m.ledgers.ForVisitor(id.ID, sess.DeviceID()).Balance(ctx)
}
