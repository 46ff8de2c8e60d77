package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	// BackendAPIKey guards /v1. Empty disables auth.
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated origin list. Empty allows any origin.
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", h.ListVideos)
			r.Post("/", h.CreateVideo)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetVideo)
				r.Get("/download", h.GetVideoDownload)
				r.Post("/cancel", h.CancelVideo)
			})
		})

		// Split jobs are read back through /videos/{id}.
		r.Post("/splits", h.CreateSplit)
	})

	return r
}

func parseOrigins(list string) []string {
	var origins []string
	for _, o := range strings.Split(list, ",") {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
