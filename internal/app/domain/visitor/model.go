// Package visitor holds the identity and profile types for app visitors.
package visitor

import "time"

// Identity names an authenticated visitor. The zero value represents an
// anonymous visitor: no ID, ledger keyed to the device.
type Identity struct {
	ID          string
	Username    string
	DisplayName string
	PhotoURL    string
	JoinedDate  time.Time
}

// Anonymous reports whether this identity belongs to a guest visitor.
func (i Identity) Anonymous() bool { return i.ID == "" }

// Profile is the durable account record for an authenticated visitor.
// Coins is the remote coin balance and never goes negative.
type Profile struct {
	ID          string
	Username    string
	DisplayName string
	PhotoURL    string
	Coins       int64
	JoinedDate  time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Identity projects the profile into its visitor identity.
func (p Profile) Identity() Identity {
	return Identity{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		PhotoURL:    p.PhotoURL,
		JoinedDate:  p.JoinedDate,
	}
}
