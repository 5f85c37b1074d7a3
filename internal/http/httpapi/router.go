// Package httpapi wires the HTTP routes to their handlers.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"actorset/internal/http/handlers"
	"actorset/internal/middleware"
)

// NewRouter assembles the API surface.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(app.AllowedOrigins))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/actors", func(r chi.Router) {
		r.Get("/", app.ListActors)
		r.Get("/{id}/manifest", app.GetManifest)
		r.Get("/{id}/export", app.ExportActor)
		r.Post("/{id}/evaluate", app.Evaluate)
		r.Post("/{id}/plan", app.Plan)
		r.Post("/{id}/balance", app.Balance)
	})

	r.Get("/v1/progress", app.Progress)

	return r
}
