package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	apihandler "github.com/maraichr/nightcrawler/internal/api/handler"
	apimw "github.com/maraichr/nightcrawler/internal/api/middleware"
	"github.com/maraichr/nightcrawler/internal/jobs"
)

// RouterDeps holds the dependencies of the router.
type RouterDeps struct {
	Dispatcher jobs.Dispatcher
	Status     apihandler.StatusReader
	// Store is checked by /readyz; nil when there is nothing to check.
	Store apihandler.Pinger
	// Auth guards /api/v1. Required.
	Auth func(http.Handler) http.Handler
	// ReindexGuard additionally guards triggering a reindex; nil allows every
	// authenticated caller.
	ReindexGuard func(http.Handler) http.Handler
}

func NewRouter(logger *slog.Logger, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(deps.Store)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.Auth)

		queues := apihandler.NewQueueHandler(logger, deps.Dispatcher, deps.Status)
		r.Route("/queues/{projectId}/{branchName}", func(r chi.Router) {
			if deps.ReindexGuard != nil {
				r.With(deps.ReindexGuard).Post("/", queues.Create)
			} else {
				r.Post("/", queues.Create)
			}
			r.Get("/", queues.Get)
		})
	})

	return r
}
