package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

// Resync triggers a manual snapshot resync.
func Resync(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Resync != nil && d.Resync() {
			d.Logger.Info("manual resync triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			w.WriteHeader(http.StatusAccepted)
			if _, err := w.Write([]byte("✅ Resync triggered successfully\n")); err != nil {
				d.Logger.Debug("failed to write response", logger.Error(err))
			}
			return
		}

		d.Logger.Warn("resync already pending",
			logger.String("remote_ip", r.RemoteAddr))
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := w.Write([]byte("⏳ Resync already pending, please wait\n")); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}
