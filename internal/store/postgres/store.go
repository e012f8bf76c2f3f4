package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/MrSnakeDoc/marks/internal/connect"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// invalidTextRepresentation is raised when a non-UUID id is compared
// against the uuid primary key.
const invalidTextRepresentation = "22P02"

// Store keeps bookmarks in PostgreSQL. Row changes reach subscribers
// through the trigger installed by Migrate and LISTEN on NotifyChannel.
type Store struct {
	db     *sql.DB
	dsn    string
	logger logger.Logger
}

// New connects to the database described by dsn.
func New(ctx context.Context, dsn string, retry connect.Options, log logger.Logger) (*Store, error) {
	db, err := Open(ctx, dsn, retry, log)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dsn: dsn, logger: log}, nil
}

// Migrate installs the table, index and notification trigger.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, owner domain.Identity) ([]domain.Bookmark, error) {
	query := `
		SELECT id, user_id, title, url, created_at
		FROM bookmarks
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := make([]domain.Bookmark, 0)
	for rows.Next() {
		var b domain.Bookmark
		if err := rows.Scan(&b.ID, &b.OwnerID, &b.Title, &b.URL, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmarks: %w", err)
	}

	return bookmarks, nil
}

func (s *Store) Create(ctx context.Context, owner domain.Identity, title, url string) (domain.Bookmark, error) {
	if owner.IsZero() {
		return domain.Bookmark{}, domain.ErrNoIdentity
	}

	query := `
		INSERT INTO bookmarks (user_id, title, url)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, title, url, created_at
	`

	var b domain.Bookmark
	err := s.db.QueryRowContext(ctx, query, owner.ID, title, url).Scan(
		&b.ID, &b.OwnerID, &b.Title, &b.URL, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to create bookmark: %w", err)
	}

	return b, nil
}

// Delete removes a bookmark. Missing rows and malformed ids are treated as
// already deleted.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE id = $1`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == invalidTextRepresentation {
			return nil
		}
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

// Subscribe starts a dedicated LISTEN connection.
func (s *Store) Subscribe(ctx context.Context) (domain.Subscription, error) {
	l, err := newListener(ctx, s.dsn, s.logger)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
