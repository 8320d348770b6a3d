// Package content holds catalog item and theme types plus the interaction
// reward schedule.
package content

import "time"

// Item is a single piece of admin-curated image content.
type Item struct {
	ID          string
	Title       string
	MediaURL    string
	ThemeID     string
	Description string
	Tags        []string
	CreatedAt   time.Time
}

// Theme groups catalog items for browsing.
type Theme struct {
	ID   string
	Name string
}

// InteractionKind identifies a per-item visitor action.
type InteractionKind string

const (
	InteractionLike     InteractionKind = "like"
	InteractionDownload InteractionKind = "download"
)

// Valid reports whether the kind is one the engine pays rewards for.
func (k InteractionKind) Valid() bool {
	return k == InteractionLike || k == InteractionDownload
}

// Reward returns the coin credit for one interaction of this kind.
func (k InteractionKind) Reward() int64 {
	switch k {
	case InteractionDownload:
		return 2
	default:
		return 1
	}
}
