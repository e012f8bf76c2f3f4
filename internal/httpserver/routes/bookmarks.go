package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	r.With(timed(d)...).Get("/api/bookmarks", handlers.ListBookmarks(d))

	// One bucket shared by create and delete.
	write := limited(d)
	r.With(write...).Post("/api/bookmarks", handlers.CreateBookmark(d))
	r.With(write...).Delete("/api/bookmarks/{id}", handlers.DeleteBookmark(d))
}
