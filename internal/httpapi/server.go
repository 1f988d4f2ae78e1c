// Package httpapi is the authenticated, rate-limited HTTP surface fronting
// the repository, auth core, and ingestion client (§4.H). Its server
// bootstrap follows the teacher's internal/interfaces/http/server.go: a
// gorilla/mux router built once at construction, a middleware chain applied
// to every route, and an *http.Server wrapping it with explicit timeouts.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/osservatorio-istat/platform/internal/auth"
	"github.com/osservatorio-istat/platform/internal/ingestion"
	"github.com/osservatorio-istat/platform/internal/metadatastore"
	"github.com/osservatorio-istat/platform/internal/metrics"
	"github.com/osservatorio-istat/platform/internal/ratelimit"
	"github.com/osservatorio-istat/platform/internal/repository"
	"github.com/osservatorio-istat/platform/internal/rules"
)

// ServerConfig collects the HTTP-layer options the teacher's
// DefaultServerConfig groups together, extended with the CORS origin list
// §6.5 adds.
type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RequestBudget      time.Duration
	CORSAllowedOrigins []string
	RateLimitDefault   int
}

// Server wraps the router, its dependencies, and the underlying
// *http.Server, mirroring the teacher's Server{router,server,handlers,config}
// shape.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	config   ServerConfig
}

// Deps bundles every component the HTTP surface depends on, so NewServer
// doesn't need a long parameter list.
type Deps struct {
	Repo       *repository.Repository
	APIKeys    *metadatastore.APIKeyRepo
	RateLimits *metadatastore.RateLimitRepo
	Audit      *metadatastore.AuditRepo
	Minter     *auth.TokenMinter
	ScopeCrypt *auth.ScopeCipher
	Limiter    *ratelimit.Limiter
	Rules      *rules.Repo
	Ingestion  *ingestion.Client
	Metrics    *metrics.Registry
}

// NewServer builds a Server with routes and middleware already installed.
func NewServer(cfg ServerConfig, deps Deps) *Server {
	router := mux.NewRouter()
	handlers := NewHandlers(deps)

	s := &Server{
		router:   router,
		handlers: handlers,
		config:   cfg,
	}
	s.setupRoutes(deps)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// setupRoutes wires every route in §4.H's table, composing the middleware
// chain in the order the spec requires: request id/logging -> CORS -> gzip
// -> auth -> rate limit -> audit, with /health exempt from auth.
func (s *Server) setupRoutes(deps Deps) {
	s.router.Use(requestIDMiddleware)
	s.router.Use(requestLoggingMiddleware)
	s.router.Use(corsMiddleware(s.config.CORSAllowedOrigins))
	s.router.Use(gzipMiddleware)
	s.router.Use(processTimeMiddleware)
	s.router.Use(metricsMiddleware(deps.Metrics))

	s.router.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)
	if deps.Metrics != nil {
		s.router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	authed := s.router.PathPrefix("/").Subrouter()
	authed.Use(authMiddleware(deps.Minter, deps.APIKeys, deps.ScopeCrypt))
	authed.Use(rateLimitMiddleware(deps.Limiter, deps.RateLimits, s.config.RateLimitDefault))
	authed.Use(auditMiddleware(deps.Audit))

	authed.HandleFunc("/datasets", requireScope(auth.ScopeRead, s.handlers.ListDatasets)).Methods(http.MethodGet)
	authed.HandleFunc("/datasets/{id}", requireScope(auth.ScopeRead, s.handlers.GetDataset)).Methods(http.MethodGet)
	authed.HandleFunc("/datasets/{id}/timeseries", requireScope(auth.ScopeRead, s.handlers.GetTimeSeries)).Methods(http.MethodGet)

	authed.HandleFunc("/auth/token", requireScope(auth.ScopeAdmin, s.handlers.CreateToken)).Methods(http.MethodPost)
	authed.HandleFunc("/auth/keys", requireScope(auth.ScopeAdmin, s.handlers.ListKeys)).Methods(http.MethodGet)
	authed.HandleFunc("/analytics/usage", requireScope(auth.ScopeAdmin, s.handlers.UsageAnalytics)).Methods(http.MethodGet)

	authed.HandleFunc("/odata/", requireScope(auth.ScopeRead, s.handlers.ODataServiceDocument)).Methods(http.MethodGet)
	authed.HandleFunc("/odata/$metadata", requireScope(auth.ScopeRead, s.handlers.ODataMetadata)).Methods(http.MethodGet)
	authed.HandleFunc("/odata/Datasets", requireScope(auth.ScopeRead, s.handlers.ODataDatasets)).Methods(http.MethodGet)
	authed.HandleFunc("/odata/Observations", requireScope(auth.ScopeRead, s.handlers.ODataObservations)).Methods(http.MethodGet)
	authed.HandleFunc("/odata/Territories", requireScope(auth.ScopeRead, s.handlers.ODataTerritories)).Methods(http.MethodGet)
	authed.HandleFunc("/odata/Measures", requireScope(auth.ScopeRead, s.handlers.ODataMeasures)).Methods(http.MethodGet)

	authed.HandleFunc("/api/analysis/dataflow", requireScope(auth.ScopeRead, s.handlers.AnalyzeDataflow)).Methods(http.MethodPost)
	authed.HandleFunc("/api/analysis/dataflow/upload", requireScope(auth.ScopeRead, s.handlers.AnalyzeDataflowUpload)).Methods(http.MethodPost)
	authed.HandleFunc("/api/analysis/dataflow/bulk", requireScope(auth.ScopeRead, s.handlers.AnalyzeDataflowBulk)).Methods(http.MethodPost)

	authed.HandleFunc("/api/analysis/rules", requireScope(auth.ScopeRead, s.handlers.ListRules)).Methods(http.MethodGet)
	authed.HandleFunc("/api/analysis/rules", requireScope(auth.ScopeWrite, s.handlers.CreateRule)).Methods(http.MethodPost)
	authed.HandleFunc("/api/analysis/rules/{rule_id}", requireScope(auth.ScopeWrite, s.handlers.UpdateRule)).Methods(http.MethodPut)
	authed.HandleFunc("/api/analysis/rules/{rule_id}", requireScope(auth.ScopeWrite, s.handlers.DeleteRule)).Methods(http.MethodDelete)

	authed.HandleFunc("/api/istat/status", requireScope(auth.ScopeRead, s.handlers.UpstreamStatus)).Methods(http.MethodGet)
	authed.HandleFunc("/api/istat/dataflows", requireScope(auth.ScopeRead, s.handlers.UpstreamDataflows)).Methods(http.MethodGet)
	authed.HandleFunc("/api/istat/dataset/{id}", requireScope(auth.ScopeRead, s.handlers.UpstreamDataset)).Methods(http.MethodGet)
	authed.HandleFunc("/api/istat/sync/{id}", requireScope(auth.ScopeWrite, s.handlers.UpstreamSync)).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// Start begins serving, blocking until the server is shut down or fails.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("httpapi: starting server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("httpapi: shutting down server")
	return s.server.Shutdown(ctx)
}
