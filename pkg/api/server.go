package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/assessor/pkg/audit"
	"github.com/platinummonkey/assessor/pkg/auth"
	"github.com/platinummonkey/assessor/pkg/gate"
	"github.com/platinummonkey/assessor/pkg/httputil"
	"github.com/platinummonkey/assessor/pkg/middleware"
	"github.com/platinummonkey/assessor/pkg/observability"
	"github.com/platinummonkey/assessor/pkg/preference"
	"github.com/platinummonkey/assessor/pkg/rbac"
	"github.com/platinummonkey/assessor/pkg/sessionstore"
)

// Config wires the server's collaborators. Store and Authenticator are
// required; everything else has a default.
type Config struct {
	Store         sessionstore.Store
	Preferences   preference.Store
	Recorder      audit.Recorder
	Authenticator auth.Authenticator
	Catalog       *gate.Catalog
	Clock         clockwork.Clock
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	// RateLimiter throttles privilege changes per user; nil disables it.
	RateLimiter middleware.Limiter

	ClientCacheSize int
	ClientCacheTTL  time.Duration
	// SecureCookies marks the client cookie Secure regardless of r.TLS,
	// for deployments behind a TLS-terminating proxy.
	SecureCookies bool
}

// Server is the assessor HTTP API
type Server struct {
	router   *mux.Router
	handler  http.Handler
	store    sessionstore.Store
	catalog  *gate.Catalog
	clients  *clientRegistry
	enforcer *rbac.Enforcer
	perms    *rbac.PermissionMiddleware
	logger   *observability.Logger
	metrics  *observability.Metrics
	secure   bool
}

// NewServer creates a new API server
func NewServer(cfg Config) *Server {
	if cfg.Preferences == nil {
		cfg.Preferences = preference.NewMemoryStore()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = audit.NopRecorder()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNopLogger()
	}
	if cfg.Catalog == nil {
		// the built-in catalog never fails to load
		cfg.Catalog, _ = gate.NewCatalog("", cfg.Logger, cfg.Metrics)
	}

	s := &Server{
		router:  mux.NewRouter(),
		store:   cfg.Store,
		catalog: cfg.Catalog,
		logger:  cfg.Logger.WithComponent("api"),
		metrics: cfg.Metrics,
		secure:  cfg.SecureCookies,
	}
	s.clients = newClientRegistry(clientRegistryConfig{
		Size:        cfg.ClientCacheSize,
		TTL:         cfg.ClientCacheTTL,
		Store:       cfg.Store,
		Preferences: cfg.Preferences,
		Recorder:    cfg.Recorder,
		Clock:       cfg.Clock,
		Logger:      cfg.Logger,
		Metrics:     cfg.Metrics,
	})
	s.enforcer = rbac.NewEnforcer(cfg.Store, cfg.Metrics)
	s.perms = rbac.NewPermissionMiddleware(s.enforcer, s, cfg.Logger)

	s.setupRoutes(cfg)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(cfg Config) {
	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(auth.Middleware(cfg.Authenticator, cfg.Logger))
	v1.Use(s.clientMiddleware)

	// Session routes
	v1.HandleFunc("/session", s.getSession).Methods("GET")
	v1.HandleFunc("/session/logout", s.logout).Methods("POST")

	// Admin surface gate
	v1.HandleFunc("/features", s.getFeatures).Methods("GET")

	v1.HandleFunc("/impersonation/refresh", s.refreshImpersonation).Methods("POST")

	// Privilege changes share a per-user rate limit
	sensitive := v1.NewRoute().Subrouter()
	if cfg.RateLimiter != nil {
		sensitive.Use(middleware.RateLimit(cfg.RateLimiter, middleware.UserKey, cfg.Logger))
	}
	sensitive.HandleFunc("/session/role", s.switchRole).Methods("POST")

	// The super admin check for impersonation is made by the store against
	// the real actor, so these routes are not gated on the principal.
	sensitive.HandleFunc("/impersonation", s.startImpersonation).Methods("POST")
	sensitive.HandleFunc("/impersonation", s.endImpersonation).Methods("DELETE")

	// Role assignment
	assigner := rbac.NewAssigner(cfg.Store, s.enforcer, cfg.Recorder, cfg.Logger)
	rbac.NewHandlers(assigner, cfg.Store, s.perms, cfg.Logger).RegisterRoutes(sensitive)

	v1.Handle("/admin/users/{id}", s.perms.RequirePermission(rbac.PermManageUsers)(http.HandlerFunc(s.getUser))).Methods("GET")

	// Audit trail
	v1.Handle("/admin/audit", s.perms.RequirePermission(rbac.PermViewAuditLog)(http.HandlerFunc(s.listAudit))).Methods("GET")

	var handler http.Handler = s.router
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	handler = httputil.LoggingMiddleware(s.logger)(handler)
	handler = httputil.RecoveryMiddleware(s.logger)(handler)
	handler = httputil.RequestIDMiddleware(handler)
	s.handler = otelhttp.NewHandler(handler, "assessor-api")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Close releases every cached client context
func (s *Server) Close() {
	s.clients.purge()
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
