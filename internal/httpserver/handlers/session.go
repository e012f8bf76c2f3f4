package handlers

import (
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

type signInRequest struct {
	Token string `json:"token"`
}

// SignIn verifies the bearer token in the body and makes it current.
func SignIn(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid request body")
			return
		}

		id, err := d.Sessions.SignIn(r.Context(), req.Token)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				d.Logger.Info("sign-in rejected", logger.String("remote_ip", r.RemoteAddr))
				writeError(w, d.Logger, http.StatusUnauthorized, "invalid token")
				return
			}
			d.Logger.Error("sign-in failed", logger.Error(err))
			writeError(w, d.Logger, http.StatusInternalServerError, "sign-in failed")
			return
		}

		writeJSON(w, d.Logger, http.StatusOK, id)
	}
}

// SignOut clears the session. Always 204.
func SignOut(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Sessions.SignOut()
		w.WriteHeader(http.StatusNoContent)
	}
}

// Session returns the current identity, or 204 when signed out.
func Session(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := d.Sessions.Current()
		if id.IsZero() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, id)
	}
}
