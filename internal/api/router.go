package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tablesheet/internal/middleware"
)

// RouterDeps holds everything NewRouter mounts.
type RouterDeps struct {
	Handler     *Handler
	Stream      http.Handler // GET /v1/tables/{tableId}/stream; optional
	Auth        func(http.Handler) http.Handler
	RateLimit   func(http.Handler) http.Handler // optional
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter builds the chi router: public health check at /healthz and the
// authenticated table API under /v1.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.Auth)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit)
		}
		deps.Handler.Mount(r)
		if deps.Stream != nil {
			r.Method(http.MethodGet, "/tables/{tableId}/stream", deps.Stream)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: http.StatusNotFound, Message: "route not found"})
	})
	return r
}
