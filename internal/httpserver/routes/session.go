package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
)

func init() { Register(registerSession) }

func registerSession(r chi.Router, d deps.Deps) {
	r.With(timed(d)...).Get("/api/session", handlers.Session(d))
	r.With(limited(d)...).Post("/api/session", handlers.SignIn(d))
	r.With(limited(d)...).Delete("/api/session", handlers.SignOut(d))
}
