package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
)

func init() { Register(registerResync) }

func registerResync(r chi.Router, d deps.Deps) {
	r.With(limited(d)...).Post("/api/resync", handlers.Resync(d))
}
