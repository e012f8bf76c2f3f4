package homepage

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// ImportResult summarizes an import run.
type ImportResult struct {
	Imported int
	Skipped  int
}

// Importer creates bookmarks from Homepage entries for one owner.
type Importer struct {
	store  domain.Store
	logger logger.Logger
	out    io.Writer
}

// NewImporter writes its progress bar to out (io.Discard to silence it).
func NewImporter(store domain.Store, log logger.Logger, out io.Writer) *Importer {
	return &Importer{store: store, logger: log, out: out}
}

// ImportFile loads, maps and imports a bookmarks.yaml file.
func (im *Importer) ImportFile(ctx context.Context, owner domain.Identity, path string) (ImportResult, error) {
	config, err := NewBookmarkLoader(path).Load()
	if err != nil {
		return ImportResult{}, err
	}
	entries, err := NewBookmarkMapper().MapBookmarks(config)
	if err != nil {
		return ImportResult{}, err
	}
	return im.Import(ctx, owner, entries)
}

// Import creates every entry whose URL the owner does not already have.
// Running it twice imports nothing the second time.
func (im *Importer) Import(ctx context.Context, owner domain.Identity, entries []Entry) (ImportResult, error) {
	if owner.IsZero() {
		return ImportResult{}, domain.ErrNoIdentity
	}

	existing, err := im.store.List(ctx, owner)
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to list existing bookmarks: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, b := range existing {
		known[b.URL] = true
	}

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetWriter(im.out),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(im.out) }),
	)

	var res ImportResult
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if known[e.URL] {
			res.Skipped++
			_ = bar.Add(1)
			continue
		}

		if _, err := im.store.Create(ctx, owner, e.Title, e.URL); err != nil {
			return res, fmt.Errorf("failed to import %q: %w", e.URL, err)
		}
		known[e.URL] = true
		res.Imported++
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	im.logger.Info("import complete",
		logger.String("user_id", owner.ID),
		logger.Int("imported", res.Imported),
		logger.Int("skipped", res.Skipped))

	return res, nil
}
