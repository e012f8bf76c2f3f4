package domain

import "time"

// Bookmark is a saved URL owned by exactly one identity.
// Bookmarks are immutable once created: the store assigns ID and CreatedAt,
// and the only other lifecycle step is deletion.
type Bookmark struct {
	// ─────────────────────────────
	// Identity (assigned by the store)
	// ─────────────────────────────

	// ID is the opaque unique identifier.
	ID string `json:"id"`

	// OwnerID references the identity that owns the bookmark.
	OwnerID string `json:"user_id"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// Title is the user supplied label.
	// Example: "Docs"
	Title string `json:"title"`

	// URL is the saved link.
	// Example: https://docs.example
	URL string `json:"url"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	// CreatedAt drives the default ordering (most recent first).
	CreatedAt time.Time `json:"created_at"`
}

// IndexOf returns the position of the bookmark with the given ID, or -1.
func IndexOf(list []Bookmark, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
