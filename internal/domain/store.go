package domain

import "context"

// Store is the remote bookmark store the synchronizer talks to.
// Authorization is the store's concern; callers pass the owner explicitly.
type Store interface {
	// List returns every bookmark owned by owner, most recent first.
	List(ctx context.Context, owner Identity) ([]Bookmark, error)
	// Create inserts a bookmark and returns the stored record.
	Create(ctx context.Context, owner Identity, title, url string) (Bookmark, error)
	// Delete removes a bookmark by ID. Unknown IDs are not an error.
	Delete(ctx context.Context, id string) error
	// Subscribe opens the shared change feed for all owners.
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is a live change feed. Events is closed once the
// subscription ends, either through Close or because the feed was lost.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// SessionProvider supplies the current identity and its transitions.
type SessionProvider interface {
	Current() Identity
	Subscribe() (<-chan Transition, func())
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Migrator is implemented by stores that own their schema.
type Migrator interface {
	Migrate(ctx context.Context) error
}
