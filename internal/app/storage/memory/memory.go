package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/domain/withdrawal"
	"github.com/filcuan/coin-engine/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. Coin adjustments are applied under the store lock, which
// gives them the same atomicity the SQL and redis stores provide.
type Store struct {
	mu         sync.RWMutex
	nextID     int64
	profiles   map[string]visitor.Profile
	guestCoins map[string]int64
	items      map[string]content.Item
	itemSeq    map[string]int64
	themes     map[string]content.Theme
	requests   map[string]withdrawal.Request
}

var _ storage.ProfileStore = (*Store)(nil)
var _ storage.GuestLedgerStore = (*Store)(nil)
var _ storage.CatalogStore = (*Store)(nil)
var _ storage.WithdrawalStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:     1,
		profiles:   make(map[string]visitor.Profile),
		guestCoins: make(map[string]int64),
		items:      make(map[string]content.Item),
		itemSeq:    make(map[string]int64),
		themes:     make(map[string]content.Theme),
		requests:   make(map[string]withdrawal.Request),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p visitor.Profile) (visitor.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	} else if _, exists := s.profiles[p.ID]; exists {
		return visitor.Profile{}, fmt.Errorf("profile %s already exists", p.ID)
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Coins < 0 {
		p.Coins = 0
	}

	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p visitor.Profile) (visitor.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profiles[p.ID]
	if !ok {
		return visitor.Profile{}, fmt.Errorf("profile %s not found", p.ID)
	}

	// Coin balance mutates only through AdjustCoins/SetCoins.
	p.Coins = original.Coins
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	s.profiles[p.ID] = p
	return p, nil
}

func (s *Store) GetProfile(_ context.Context, id string) (visitor.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return visitor.Profile{}, fmt.Errorf("profile %s not found", id)
	}
	return p, nil
}

func (s *Store) AdjustCoins(_ context.Context, id string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return 0, fmt.Errorf("profile %s not found", id)
	}

	p.Coins += delta
	if p.Coins < 0 {
		p.Coins = 0
	}
	p.UpdatedAt = time.Now().UTC()
	s.profiles[id] = p
	return p.Coins, nil
}

func (s *Store) SetCoins(_ context.Context, id string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("profile %s not found", id)
	}
	if value < 0 {
		value = 0
	}
	p.Coins = value
	p.UpdatedAt = time.Now().UTC()
	s.profiles[id] = p
	return nil
}

// GuestLedgerStore implementation ---------------------------------------------

func (s *Store) GuestCoins(_ context.Context, deviceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guestCoins[deviceID], nil
}

func (s *Store) AdjustGuestCoins(_ context.Context, deviceID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.guestCoins[deviceID] + delta
	if v < 0 {
		v = 0
	}
	s.guestCoins[deviceID] = v
	return v, nil
}

func (s *Store) ClearGuestCoins(_ context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guestCoins, deviceID)
	return nil
}

// CatalogStore implementation -------------------------------------------------

func (s *Store) UpsertItem(_ context.Context, item content.Item) (content.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = s.nextIDLocked()
	}
	if existing, ok := s.items[item.ID]; ok {
		item.CreatedAt = existing.CreatedAt
	} else {
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now().UTC()
		}
		s.itemSeq[item.ID] = s.nextID
		s.nextID++
	}
	item.Tags = cloneTags(item.Tags)

	s.items[item.ID] = item
	return s.items[item.ID], nil
}

func (s *Store) GetItem(_ context.Context, id string) (content.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return content.Item{}, fmt.Errorf("item %s not found", id)
	}
	item.Tags = cloneTags(item.Tags)
	return item, nil
}

func (s *Store) ListItems(_ context.Context) ([]content.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]content.Item, 0, len(s.items))
	for _, item := range s.items {
		item.Tags = cloneTags(item.Tags)
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return s.itemSeq[result[i].ID] > s.itemSeq[result[j].ID]
	})
	return result, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("item %s not found", id)
	}
	delete(s.items, id)
	delete(s.itemSeq, id)
	return nil
}

func (s *Store) UpsertTheme(_ context.Context, theme content.Theme) (content.Theme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if theme.ID == "" {
		theme.ID = s.nextIDLocked()
	}
	s.themes[theme.ID] = theme
	return theme, nil
}

func (s *Store) ListThemes(_ context.Context) ([]content.Theme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]content.Theme, 0, len(s.themes))
	for _, theme := range s.themes {
		result = append(result, theme)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeleteTheme(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.themes[id]; !ok {
		return fmt.Errorf("theme %s not found", id)
	}
	delete(s.themes, id)
	return nil
}

// WithdrawalStore implementation ----------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req withdrawal.Request) (withdrawal.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.requests[req.ID]; exists {
		return withdrawal.Request{}, fmt.Errorf("withdrawal request %s already exists", req.ID)
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) UpdateRequest(_ context.Context, req withdrawal.Request) (withdrawal.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.requests[req.ID]
	if !ok {
		return withdrawal.Request{}, fmt.Errorf("withdrawal request %s not found", req.ID)
	}

	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	s.requests[req.ID] = req
	return req, nil
}

func (s *Store) GetRequest(_ context.Context, id string) (withdrawal.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return withdrawal.Request{}, fmt.Errorf("withdrawal request %s not found", id)
	}
	return req, nil
}

func (s *Store) ListRequests(_ context.Context) ([]withdrawal.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]withdrawal.Request, 0, len(s.requests))
	for _, req := range s.requests {
		result = append(result, req)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListUnclearedRequests(_ context.Context) ([]withdrawal.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []withdrawal.Request
	for _, req := range s.requests {
		if !req.BalanceCleared {
			result = append(result, req)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
