// Package httpapi is the HTTP surface of a mesh node: the peer endpoints
// other nodes call (heartbeat, gossip, sync) and the authenticated local API
// the CLI calls.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP API server.
type Server struct {
	node       Node
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
}

// Config holds server configuration.
type Config struct {
	SecretKey string
	NoAuth    bool // development mode: local API without tokens
}

// NewServer creates a new HTTP API server.
func NewServer(node Node, config Config) *Server {
	secretKey := config.SecretKey
	if secretKey == "" {
		secretKey = "brainmesh-dev-secret-change-in-production"
	}

	jwtAuth := NewJWTAuth(secretKey)
	handlers := NewHandlers(node, jwtAuth)
	middleware := NewMiddleware(jwtAuth, config.NoAuth)

	server := &Server{
		node:       node,
		jwtAuth:    jwtAuth,
		handlers:   handlers,
		middleware: middleware,
	}

	mux := server.setupRoutes()
	server.server = &http.Server{
		Handler:        mux,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return server
}

// Handler returns the fully assembled route handler, for tests that serve
// the API through httptest.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Serve serves on an already bound listener. The node binds before starting
// its background tasks so an occupied port fails fast.
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	// Peer endpoints (no auth; the wire contract between nodes).
	mux.Handle("/heartbeat", withMiddleware(s.requireMethod(http.MethodGet, s.handlers.Heartbeat)))
	mux.Handle("/gossip", withMiddleware(s.requireMethod(http.MethodPost, s.handlers.Gossip)))
	mux.Handle("/sync/manifest", withMiddleware(s.requireMethod(http.MethodGet, s.handlers.SyncManifest)))
	mux.Handle("/sync/pull", withMiddleware(s.requireMethod(http.MethodPost, s.handlers.SyncPull)))
	mux.Handle("/sync/push", withMiddleware(s.requireMethod(http.MethodPost, s.handlers.SyncPush)))

	// Observability (no auth).
	mux.Handle("/status", withMiddleware(s.requireMethod(http.MethodGet, s.handlers.Status)))
	mux.Handle("/peers", withMiddleware(s.requireMethod(http.MethodGet, s.handlers.Peers)))
	mux.Handle("/metrics", promhttp.Handler())

	// Local client API.
	mux.Handle("/api/v1/auth/login", withMiddleware(s.handlers.Login))
	mux.Handle("/api/v1/memories", withMiddleware(s.middleware.AuthRequired(s.requireMethod(http.MethodGet, s.handlers.Memories))))
	mux.Handle("/api/v1/hot", withMiddleware(s.middleware.AuthRequired(s.handleHot)))
	mux.Handle("/api/v1/hot/", withMiddleware(s.middleware.AuthRequired(s.handleHotByID)))

	return mux
}

// handleHot routes hot collection requests based on HTTP method.
func (s *Server) handleHot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handlers.ListHot(w, r)
	case http.MethodPost:
		s.handlers.CreateHot(w, r)
	default:
		s.handlers.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHotByID handles individual record operations, including
// /api/v1/hot/{id}/externalize.
func (s *Server) handleHotByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/hot/")
	if rest == "" {
		s.handlers.writeError(w, "Record ID required", http.StatusBadRequest)
		return
	}

	id := rest
	externalize := false
	if strings.HasSuffix(rest, "/externalize") {
		id = strings.TrimSuffix(rest, "/externalize")
		externalize = true
	}
	if id == "" || strings.Contains(id, "/") {
		s.handlers.writeError(w, "Invalid record path", http.StatusNotFound)
		return
	}

	ctx := context.WithValue(r.Context(), RecordIDKey, id)
	r = r.WithContext(ctx)

	if externalize {
		if r.Method != http.MethodPost {
			s.handlers.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handlers.ExternalizeHot(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handlers.GetHot(w, r)
	case http.MethodPut:
		s.handlers.UpdateHot(w, r)
	case http.MethodDelete:
		s.handlers.DeleteHot(w, r)
	default:
		s.handlers.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			s.handlers.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}
