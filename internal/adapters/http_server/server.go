package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	mux  *chi.Mux
	cors *cors.Cors
}

// New builds the router. An empty origins list allows any origin without
// credentials.
func New(origins []string) *Server {
	m := chi.NewRouter()

	// All middlewares go here (before any routes are added)
	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Timeout(45 * time.Second)) // a search page can take the oracle's full response time
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	opts := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "X-Admin-Key", "If-None-Match"},
		ExposedHeaders: []string{"ETag", "X-Request-Id"},
		MaxAge:         600,
	}
	if len(origins) > 0 {
		opts.AllowCredentials = true
	}
	return &Server{mux: m, cors: cors.New(opts)}
}

func (s *Server) Mux() http.Handler { return s.cors.Handler(s.mux) }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}
