package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StreamRoutes serves the realtime transports.
type StreamRoutes interface {
	Events(w http.ResponseWriter, r *http.Request)
	WebSocket(w http.ResponseWriter, r *http.Request)
}

// NewRouter assembles the HTTP surface. requireOwner authenticates the task
// routes; the realtime routes authenticate themselves when scoped.
func NewRouter(tasks *TaskHandler, streams StreamRoutes, requireOwner func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.CleanPath)

	// Health check endpoint (excluded from tracing)
	r.Get("/health", tasks.Health)
	r.Get("/", tasks.Root)
	r.Post("/logout", tasks.Logout)

	// Long-lived streams stay outside the request timeout.
	r.Get("/events", streams.Events)
	r.Get("/ws", streams.WebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(requireOwner)
		r.Mount("/tasks", tasks.Routes())
	})

	return r
}
