package http

import (
	"SnapLink-Backend/internal/auth"
	"SnapLink-Backend/internal/service"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Server wires the HTTP handlers together.
type Server struct {
	linksHandler    *LinksHandler
	redirectHandler *RedirectHandler
	healthHandler   *HealthHandler
	apiKeyAuth      *auth.Middleware
	log             *zap.Logger
}

// NewServer creates the HTTP server. db may be nil when running on the
// in-memory storage; the health check then skips the database probe.
func NewServer(
	resolver *service.Resolver,
	apiKeyAuth *auth.Middleware,
	db *gorm.DB,
	log *zap.Logger,
	baseURL string,
	redirectCode int,
) *Server {
	return &Server{
		linksHandler:    NewLinksHandler(resolver, log, baseURL),
		redirectHandler: NewRedirectHandler(resolver, log, redirectCode),
		healthHandler:   NewHealthHandler(db, log),
		apiKeyAuth:      apiKeyAuth,
		log:             log,
	}
}

// SetupRoutes configures the routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Operational endpoints
	mux.HandleFunc("/health", s.healthHandler.Health)
	mux.HandleFunc("/ready", s.healthHandler.Ready)
	mux.Handle("/metrics", promhttp.Handler())

	// API endpoints; the API key is optional for create and scopes list
	mux.HandleFunc("/api/links", s.withCORS(s.apiKeyAuth.WithOwner(s.handleLinks)))
	mux.HandleFunc("/api/links/", s.withCORS(s.apiKeyAuth.WithOwner(s.linksHandler.DeleteLink)))
	mux.HandleFunc("/api/stats/", s.withCORS(s.handleStats))

	// Redirect catch-all must be last
	mux.HandleFunc("/", s.redirectHandler.HandleRedirect)

	return mux
}

// handleLinks dispatches /api/links by HTTP method.
func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.linksHandler.CreateLink(w, r)
	case http.MethodGet:
		s.linksHandler.ListLinks(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStats dispatches /api/stats/{key} and /api/stats/{key}/events.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.HasSuffix(r.URL.Path, "/events") {
		s.linksHandler.ListClickEvents(w, r)
		return
	}
	s.linksHandler.GetStats(w, r)
}

// withCORS adds CORS headers to an API handler.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.HeaderAPIKey)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
