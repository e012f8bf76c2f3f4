package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

const readyTimeout = 2 * time.Second

type readyzResponse struct {
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// Readyz reports ready once the bookmark store answers a ping.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
			defer cancel()

			if err := d.Store.Ping(ctx); err != nil {
				d.Logger.Warn("readiness check failed", logger.Error(err))
				writeJSON(w, d.Logger, http.StatusServiceUnavailable, readyzResponse{Ready: false, Error: "store unavailable"})
				return
			}
		}

		writeJSON(w, d.Logger, http.StatusOK, readyzResponse{Ready: true})
	}
}
