// Package profile manages visitor account records: registration and display
// attribute updates. Credential handling lives with the external identity
// provider; this service only owns the profile row.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/filcuan/coin-engine/internal/app/domain/visitor"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/pkg/logger"
)

// ErrInvalidInput marks updates rejected before any store call.
var ErrInvalidInput = errors.New("invalid input")

// Service owns profile records.
type Service struct {
	store storage.ProfileStore
	log   *logger.Logger
}

// New constructs a profile service.
func New(store storage.ProfileStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("profile")
	}
	return &Service{store: store, log: log}
}

// Register creates the profile record for a newly authenticated identity.
// The coin balance starts at zero and the join date is recorded once.
func (s *Service) Register(ctx context.Context, id, username string) (visitor.Profile, error) {
	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	if id == "" || username == "" {
		return visitor.Profile{}, fmt.Errorf("%w: id and username are required", ErrInvalidInput)
	}

	p, err := s.store.CreateProfile(ctx, visitor.Profile{
		ID:          id,
		Username:    username,
		DisplayName: username,
		Coins:       0,
		JoinedDate:  time.Now().UTC().Truncate(24 * time.Hour),
	})
	if err != nil {
		return visitor.Profile{}, err
	}

	s.log.WithField("profile_id", p.ID).WithField("username", p.Username).Info("profile registered")
	return p, nil
}

// Get returns a profile by ID.
func (s *Service) Get(ctx context.Context, id string) (visitor.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// UpdateDisplay changes display attributes. An empty display name is
// rejected before any store call; a nil pointer leaves the field unchanged.
func (s *Service) UpdateDisplay(ctx context.Context, id string, displayName, photoURL *string) (visitor.Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return visitor.Profile{}, err
	}

	if displayName != nil {
		trimmed := strings.TrimSpace(*displayName)
		if trimmed == "" {
			return visitor.Profile{}, fmt.Errorf("%w: display name cannot be empty", ErrInvalidInput)
		}
		p.DisplayName = trimmed
	}
	if photoURL != nil {
		p.PhotoURL = strings.TrimSpace(*photoURL)
	}

	return s.store.UpdateProfile(ctx, p)
}
