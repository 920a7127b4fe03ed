package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scribe-api/internal/api/middleware"
)

// RouterDeps are the collaborators the router mounts.
type RouterDeps struct {
	Writing *WritingHandler
	Auth    *middleware.AuthMiddleware
	// Metrics is served at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// NewRouter creates the application router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewTraceMiddleware(deps.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)

			r.Route("/projects/{projectID}/writing", func(r chi.Router) {
				r.Post("/start", deps.Writing.Start)
				r.Post("/pause", deps.Writing.Pause)
				r.Post("/resume", deps.Writing.Resume)
				r.Post("/cancel", deps.Writing.Cancel)
				r.Get("/progress", deps.Writing.GetProgress)

				r.Post("/tick", deps.Writing.Tick)
				r.Post("/outlines/next", deps.Writing.NextOutline)
				r.Post("/scenes/next", deps.Writing.NextScene)
			})
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			deps.Logger.Error("failed to write health check response", slog.String("error", err.Error()))
		}
	})
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics)
	}

	return r
}
