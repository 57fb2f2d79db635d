package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/charles-chenzz/TradeVoyage/internal/rebuild"
	"github.com/charles-chenzz/TradeVoyage/internal/store"
)

// Server holds the HTTP server dependencies.
type Server struct {
	repo      *store.Repository
	rebuilder *rebuild.Rebuilder
	nc        *nats.Conn
}

// NewServer creates a new API server.
func NewServer(repo *store.Repository, rebuilder *rebuild.Rebuilder, nc *nats.Conn) *Server {
	return &Server{repo: repo, rebuilder: rebuilder, nc: nc}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Import endpoint (POST)
		r.Post("/import", s.handleImport)

		// Read-only query endpoints (GET)
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/accounts/{accountId}/positions", s.handleListPositions)
		r.Get("/accounts/{accountId}/executions", s.handleListExecutions)
		r.Get("/accounts/{accountId}/orders", s.handleListOrders)
		r.Get("/accounts/{accountId}/wallet", s.handleListWallet)
		r.Get("/accounts/{accountId}/stats", s.handleStats)
		r.Get("/accounts/{accountId}/warnings", s.handleWarnings)

		// User-initiated refresh
		r.Post("/accounts/{accountId}/rebuild", s.handleRebuild)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
