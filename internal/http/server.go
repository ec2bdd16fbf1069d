// Package httpx serves the report ingestion API.
package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the ingestion routes.
func NewRouter(e Env) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(MetricsMiddleware(e.Metrics))

	origins := e.Cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "DNT", HMACHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", e.Healthz)
	r.Get("/readyz", e.Readyz)
	r.Post("/collect", e.Collect)
	r.Get("/hmac.js", e.HMACScript)
	r.Get("/hmac/public-key", e.HMACPublicKey)

	return r
}
