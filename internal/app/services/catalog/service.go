// Package catalog manages the shared content catalog and its themes. These
// are the data operations behind the admin authoring surface; media upload
// itself stays outside the engine and MediaURL is treated as opaque.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/filcuan/coin-engine/internal/app/domain/content"
	"github.com/filcuan/coin-engine/internal/app/storage"
	"github.com/filcuan/coin-engine/pkg/logger"
)

// Service owns catalog and theme mutations.
type Service struct {
	store storage.CatalogStore
	log   *logger.Logger
}

// New constructs a catalog service.
func New(store storage.CatalogStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, log: log}
}

// SaveItem creates or updates a catalog item.
func (s *Service) SaveItem(ctx context.Context, item content.Item) (content.Item, error) {
	item.Title = strings.TrimSpace(item.Title)
	item.MediaURL = strings.TrimSpace(item.MediaURL)

	if item.Title == "" {
		return content.Item{}, fmt.Errorf("title is required")
	}
	if item.MediaURL == "" {
		return content.Item{}, fmt.Errorf("media_url is required")
	}

	item, err := s.store.UpsertItem(ctx, item)
	if err != nil {
		return content.Item{}, err
	}
	s.log.WithField("item_id", item.ID).WithField("title", item.Title).Info("catalog item saved")
	return item, nil
}

// ListItems returns the full catalog, newest first.
func (s *Service) ListItems(ctx context.Context) ([]content.Item, error) {
	return s.store.ListItems(ctx)
}

// DeleteItem removes an item from the catalog.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.log.WithField("item_id", id).Info("catalog item deleted")
	return nil
}

// SaveTheme creates or updates a theme.
func (s *Service) SaveTheme(ctx context.Context, theme content.Theme) (content.Theme, error) {
	theme.Name = strings.TrimSpace(theme.Name)
	if theme.Name == "" {
		return content.Theme{}, fmt.Errorf("name is required")
	}
	return s.store.UpsertTheme(ctx, theme)
}

// ListThemes returns all themes.
func (s *Service) ListThemes(ctx context.Context) ([]content.Theme, error) {
	return s.store.ListThemes(ctx)
}

// DeleteTheme removes a theme. Items keep their theme ID; orphaned IDs just
// stop matching a browse filter.
func (s *Service) DeleteTheme(ctx context.Context, id string) error {
	return s.store.DeleteTheme(ctx, id)
}
