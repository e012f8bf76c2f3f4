package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
)

func init() { Register(registerStream) }

// The stream is long-lived, so it gets no request timeout.
func registerStream(r chi.Router, d deps.Deps) {
	r.With(guarded(d)...).Get("/api/stream", handlers.Stream(d))
}
