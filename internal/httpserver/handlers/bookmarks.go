package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

type listResponse struct {
	Identity   domain.Identity   `json:"identity"`
	Bookmarks  []domain.Bookmark `json:"bookmarks"`
	Generation uint64            `json:"generation"`
	Live       bool              `json:"live"`
	Query      string            `json:"query,omitempty"`
}

type createRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

// ListBookmarks returns the synchronized list, most recent first. With
// ?q= only matching bookmarks are returned, best match first.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := d.Bookmarks.Snapshot()
		resp := listResponse{
			Identity:   snap.Identity,
			Bookmarks:  snap.Bookmarks,
			Generation: snap.Generation,
			Live:       d.Bookmarks.Live(),
		}

		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			ranked := domain.RankBookmarks(q, snap.Bookmarks)
			resp.Query = q
			resp.Bookmarks = make([]domain.Bookmark, len(ranked))
			for i, c := range ranked {
				resp.Bookmarks[i] = c.Bookmark
			}
			d.Logger.Debug("bookmark search",
				logger.String("query", q),
				logger.Int("matches", len(ranked)))
		}

		writeJSON(w, d.Logger, http.StatusOK, resp)
	}
}

// CreateBookmark asks the store to create a bookmark. The list changes
// when the change event arrives, hence 202. While the list is still being
// rescoped after a sign-in or user switch it answers 409.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Sessions.Current().IsZero() {
			writeError(w, d.Logger, http.StatusUnauthorized, "not signed in")
			return
		}

		var req createRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.URL) == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "title and url are required")
			return
		}

		if err := d.Bookmarks.Add(r.Context(), req.Title, req.URL); err != nil {
			if errors.Is(err, domain.ErrSessionChanging) {
				writeError(w, d.Logger, http.StatusConflict, "session is switching, retry")
				return
			}
			d.Logger.Error("failed to create bookmark", logger.Error(err))
			writeError(w, d.Logger, http.StatusBadGateway, "store unavailable")
			return
		}

		writeJSON(w, d.Logger, http.StatusAccepted, acceptedResponse{Status: "accepted"})
	}
}

// DeleteBookmark asks the store to delete a bookmark. Unknown IDs succeed.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := d.Bookmarks.Delete(r.Context(), id); err != nil {
			d.Logger.Error("failed to delete bookmark",
				logger.String("id", id),
				logger.Error(err))
			writeError(w, d.Logger, http.StatusBadGateway, "store unavailable")
			return
		}

		writeJSON(w, d.Logger, http.StatusAccepted, acceptedResponse{Status: "accepted"})
	}
}
