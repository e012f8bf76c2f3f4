package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
)

type componentStatus struct {
	OK        bool   `json:"ok"`
	Backend   string `json:"backend,omitempty"`
	Bookmarks *int   `json:"bookmarks,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Impact    string `json:"impact,omitempty"`
	Error     string `json:"error,omitempty"`
}

type infraResponse struct {
	SyncMode   string                     `json:"sync_mode"`
	Components map[string]componentStatus `json:"components"`
}

// Infra reports the state of the store, the change feed and the session.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := d.Bookmarks.Snapshot()
		count := len(snap.Bookmarks)
		signedIn := !d.Sessions.Current().IsZero()

		components := map[string]componentStatus{
			"store": checkStore(r.Context(), d),
			"feed":  checkFeed(d, signedIn),
			"session": {
				OK:        signedIn,
				UserID:    snap.Identity.ID,
				Bookmarks: &count,
			},
		}

		writeJSON(w, d.Logger, http.StatusOK, infraResponse{
			SyncMode:   determineSyncMode(components, signedIn),
			Components: components,
		})
	}
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{OK: false, Backend: d.StoreKind, Error: "store not initialized"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{
			OK:      false,
			Backend: d.StoreKind,
			Mode:    "degraded",
			Impact:  "writes-failing",
			Error:   "unreachable",
		}
	}
	return componentStatus{OK: true, Backend: d.StoreKind}
}

func checkFeed(d deps.Deps, signedIn bool) componentStatus {
	switch {
	case !signedIn:
		return componentStatus{OK: true, Mode: "idle"}
	case d.Bookmarks.Live():
		return componentStatus{OK: true, Mode: "live"}
	default:
		return componentStatus{OK: false, Mode: "polling", Impact: "changes-visible-after-resync"}
	}
}

func determineSyncMode(components map[string]componentStatus, signedIn bool) string {
	if !signedIn {
		return "signed-out"
	}
	if !components["store"].OK {
		return "offline"
	}
	if !components["feed"].OK {
		return "degraded"
	}
	return "live"
}
