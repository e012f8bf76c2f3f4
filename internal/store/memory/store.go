package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/store/feed"
)

// Store keeps bookmarks in process memory and publishes changes on an
// in-process feed. Data is lost on restart.
type Store struct {
	mu        sync.RWMutex
	bookmarks map[string]domain.Bookmark // ID -> Bookmark
	hub       *feed.Hub
	now       func() time.Time
}

// NewStore creates an empty memory store.
func NewStore(log logger.Logger) *Store {
	return &Store{
		bookmarks: make(map[string]domain.Bookmark),
		hub:       feed.NewHub(log, feed.DefaultBuffer),
		now:       time.Now,
	}
}

// List returns owner's bookmarks, most recent first.
func (s *Store) List(ctx context.Context, owner domain.Identity) ([]domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Bookmark, 0)
	for _, b := range s.bookmarks {
		if b.OwnerID == owner.ID {
			out = append(out, b)
		}
	}
	SortRecentFirst(out)
	return out, nil
}

// Create stores a new bookmark and publishes an insert event.
func (s *Store) Create(ctx context.Context, owner domain.Identity, title, url string) (domain.Bookmark, error) {
	if err := ctx.Err(); err != nil {
		return domain.Bookmark{}, err
	}
	if owner.IsZero() {
		return domain.Bookmark{}, domain.ErrNoIdentity
	}

	// Timestamp, write and publish happen under one lock so insert events
	// leave in CreatedAt order.
	s.mu.Lock()
	defer s.mu.Unlock()

	b := domain.Bookmark{
		ID:        ulid.Make().String(),
		OwnerID:   owner.ID,
		Title:     title,
		URL:       url,
		CreatedAt: s.now().UTC(),
	}
	s.bookmarks[b.ID] = b

	s.hub.Publish(domain.ChangeEvent{Type: domain.EventInsert, Row: b})
	return b, nil
}

// Delete removes a bookmark. Unknown IDs are ignored and publish nothing.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookmarks[id]
	delete(s.bookmarks, id)
	if ok {
		s.hub.Publish(domain.ChangeEvent{Type: domain.EventDelete, Row: b})
	}
	return nil
}

// Subscribe opens the shared change feed.
func (s *Store) Subscribe(ctx context.Context) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(), nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Count returns the number of stored bookmarks across all owners.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookmarks)
}

// Close ends every open subscription.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

// SortRecentFirst orders by creation time descending, then ID descending.
// ULIDs sort by creation time, so the ID breaks timestamp ties consistently.
func SortRecentFirst(list []domain.Bookmark) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}
