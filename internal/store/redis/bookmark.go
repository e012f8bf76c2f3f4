package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Store keeps bookmarks in Redis. Each bookmark is a JSON string, each
// owner has a sorted set of IDs scored by creation time, and every write
// publishes a change event on ChangesChannel in the same transaction.
type Store struct {
	client *redis.Client
	logger logger.Logger
	now    func() time.Time
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, log logger.Logger) *Store {
	return &Store{
		client: client,
		logger: log,
		now:    time.Now,
	}
}

// List returns owner's bookmarks, most recent first. Bookmarks with equal
// scores come back in descending ID order.
func (s *Store) List(ctx context.Context, owner domain.Identity) ([]domain.Bookmark, error) {
	ids, err := s.client.ZRevRange(ctx, OwnerKey(owner.ID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark IDs: %w", err)
	}

	bookmarks := make([]domain.Bookmark, 0, len(ids))
	if len(ids) == 0 {
		return bookmarks, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BookmarkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record: skip it rather than fail the listing.
			s.logger.Debug("bookmark missing from index", logger.String("id", ids[i]))
			continue
		}
		var b domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &b); err != nil {
			s.logger.Warn("skipping undecodable bookmark", logger.String("id", ids[i]), logger.Error(err))
			continue
		}
		bookmarks = append(bookmarks, b)
	}

	return bookmarks, nil
}

// Create stores a bookmark, indexes it under its owner and publishes an
// insert event atomically.
func (s *Store) Create(ctx context.Context, owner domain.Identity, title, url string) (domain.Bookmark, error) {
	if owner.IsZero() {
		return domain.Bookmark{}, domain.ErrNoIdentity
	}

	// Scores are milliseconds; keep CreatedAt at the same precision so the
	// listing order and the timestamps agree.
	b := domain.Bookmark{
		ID:        ulid.Make().String(),
		OwnerID:   owner.ID,
		Title:     title,
		URL:       url,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	data, err := json.Marshal(b)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal bookmark: %w", err)
	}
	event, err := encodeEvent(domain.ChangeEvent{Type: domain.EventInsert, Row: b})
	if err != nil {
		return domain.Bookmark{}, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(b.ID), data, 0)
		pipe.ZAdd(ctx, OwnerKey(b.OwnerID), redis.Z{
			Score:  float64(b.CreatedAt.UnixMilli()),
			Member: b.ID,
		})
		pipe.Publish(ctx, ChangesChannel, event)
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to save bookmark: %w", err)
	}

	return b, nil
}

// Delete removes a bookmark and publishes a delete event. Unknown IDs are
// ignored and publish nothing.
func (s *Store) Delete(ctx context.Context, id string) error {
	data, err := s.client.Get(ctx, BookmarkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to get bookmark: %w", err)
	}

	var b domain.Bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("failed to unmarshal bookmark: %w", err)
	}

	event, err := encodeEvent(domain.ChangeEvent{Type: domain.EventDelete, Row: b})
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, BookmarkKey(id))
		pipe.ZRem(ctx, OwnerKey(b.OwnerID), id)
		pipe.Publish(ctx, ChangesChannel, event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}

	return nil
}

// Subscribe opens a pub/sub subscription on ChangesChannel.
func (s *Store) Subscribe(ctx context.Context) (domain.Subscription, error) {
	return newSubscription(ctx, s.client, s.logger)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
