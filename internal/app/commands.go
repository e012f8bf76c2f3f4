package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrSnakeDoc/marks/internal/config"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/session"
	"github.com/MrSnakeDoc/marks/internal/sources/homepage"
	"github.com/MrSnakeDoc/marks/internal/utils"
)

// ErrNoToken is returned by Import when neither a flag nor the
// configuration provides a session token.
var ErrNoToken = errors.New("a session token is required (--token or MARKS_SESSION_TOKEN)")

// Import creates the bookmarks of a Homepage bookmarks file for the
// identity carried by token.
func Import(ctx context.Context, cfg *config.Config, log logger.Logger, path, token string, out io.Writer) (homepage.ImportResult, error) {
	if token == "" {
		token = cfg.SessionToken
	}
	if token == "" {
		return homepage.ImportResult{}, ErrNoToken
	}

	owner, err := session.NewProvider(cfg.JWTSecret, cfg.JWTAudience, log).Verify(token)
	if err != nil {
		return homepage.ImportResult{}, fmt.Errorf("invalid session token: %w", err)
	}

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return homepage.ImportResult{}, err
	}
	defer utils.MustClose(log, "store", store)

	return homepage.NewImporter(store, log.Named("import"), out).ImportFile(ctx, owner, path)
}

// Migrate applies the schema of the configured store.
func Migrate(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	// OpenStore migrates schema-owning backends.
	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer utils.MustClose(log, "store", store)

	if _, ok := store.(domain.Migrator); !ok {
		log.Info("store has no schema to migrate", logger.String("backend", cfg.Store))
	}
	return nil
}
