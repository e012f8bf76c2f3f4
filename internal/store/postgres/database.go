package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"github.com/MrSnakeDoc/marks/internal/connect"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Open opens a pooled connection and waits for the server to answer.
func Open(ctx context.Context, dsn string, retry connect.Options, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	retry.Name = "postgres"
	retry.Target = Redact(dsn)
	if err := connect.WithRetry(ctx, retry, db.PingContext, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Redact returns host and database name of a URL-style DSN, without
// credentials. Keyword/value DSNs are not parsed.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "postgres"
	}
	return u.Host + u.Path
}

// NotifyChannel is the LISTEN/NOTIFY channel fed by the bookmarks trigger.
const NotifyChannel = "bookmarks_changes"

// schema creates the bookmarks table and the trigger that publishes every
// row change as JSON on NotifyChannel. Safe to run repeatedly.
const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id    TEXT NOT NULL,
	title      TEXT NOT NULL,
	url        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS bookmarks_user_created_idx
	ON bookmarks (user_id, created_at DESC);

CREATE OR REPLACE FUNCTION marks_notify_bookmarks_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('bookmarks_changes', json_build_object(
		'type', TG_OP,
		'record', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END,
		'old_record', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE row_to_json(OLD) END
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS bookmarks_changes_trigger ON bookmarks;
CREATE TRIGGER bookmarks_changes_trigger
	AFTER INSERT OR UPDATE OR DELETE ON bookmarks
	FOR EACH ROW EXECUTE FUNCTION marks_notify_bookmarks_change();
`
