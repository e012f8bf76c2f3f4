package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/store/feed"
)

// Store is a single-file bookmark store. SQLite has no notification
// channel, so changes made through this Store are published on an
// in-process feed after commit.
type Store struct {
	// writeMu orders writes with their events: the feed carries inserts
	// in CreatedAt order.
	writeMu sync.Mutex

	db     *sql.DB
	hub    *feed.Hub
	logger logger.Logger
	now    func() time.Time
}

// New opens the database at dbPath.
func New(ctx context.Context, dbPath string, log logger.Logger) (*Store, error) {
	db, err := Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:     db,
		hub:    feed.NewHub(log, feed.DefaultBuffer),
		logger: log,
		now:    time.Now,
	}, nil
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db)
}

func (s *Store) List(ctx context.Context, owner domain.Identity) ([]domain.Bookmark, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, url, created_at
		 FROM bookmarks
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := make([]domain.Bookmark, 0)
	for rows.Next() {
		var (
			b       domain.Bookmark
			created int64
		)
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Title, &b.URL, &created); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		b.CreatedAt = time.Unix(0, created).UTC()
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarks: %w", err)
	}

	return bookmarks, nil
}

func (s *Store) Create(ctx context.Context, owner domain.Identity, title, url string) (domain.Bookmark, error) {
	if owner.IsZero() {
		return domain.Bookmark{}, domain.ErrNoIdentity
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	b := domain.Bookmark{
		ID:        ulid.Make().String(),
		OwnerID:   owner.ID,
		Title:     title,
		URL:       url,
		CreatedAt: s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bookmarks (id, user_id, title, url, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Title, b.URL, b.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("insert bookmark: %w", err)
	}

	s.hub.Publish(domain.ChangeEvent{Type: domain.EventInsert, Row: b})
	return b, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var owner string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM bookmarks WHERE id = ? RETURNING user_id`, id,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("delete bookmark: %w", err)
	}

	s.hub.Publish(domain.ChangeEvent{
		Type: domain.EventDelete,
		Row:  domain.Bookmark{ID: id, OwnerID: owner},
	})
	return nil
}

func (s *Store) Subscribe(ctx context.Context) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close ends all subscriptions and closes the database.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}
