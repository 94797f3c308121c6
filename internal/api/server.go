// Package api provides the HTTP REST API of pingscan. It exposes scan
// submission, progress streaming, schedules, health and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	// Registers the generated OpenAPI document served under /swagger/.
	_ "github.com/anstrom/pingscan/docs/swagger"

	apihandlers "github.com/anstrom/pingscan/internal/api/handlers"
	"github.com/anstrom/pingscan/internal/api/middleware"
	"github.com/anstrom/pingscan/internal/auth"
	"github.com/anstrom/pingscan/internal/config"
	"github.com/anstrom/pingscan/internal/jobs"
	"github.com/anstrom/pingscan/internal/logging"
	"github.com/anstrom/pingscan/internal/metrics"
	"github.com/anstrom/pingscan/internal/profiles"
	"github.com/anstrom/pingscan/internal/schedule"
)

// Server timeout constants.
const (
	defaultShutdownTimeout = 30 * time.Second
	readHeaderTimeout      = 5 * time.Second
	idleTimeout            = 60 * time.Second
)

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     config.APIConfig
	logger     *logging.Logger
	metrics    *metrics.PrometheusMetrics
	startTime  time.Time
	// extra lists optional endpoints for the index.
	extra map[string]string

	mu       sync.Mutex
	listener net.Listener
}

// Deps are the components the API serves. Scheduler, Profiles and Metrics
// may be nil.
type Deps struct {
	Manager   *jobs.Manager
	Scheduler *schedule.Scheduler
	Profiles  *profiles.Manager
	Metrics   *metrics.PrometheusMetrics
	Logger    *logging.Logger
}

// New creates a new API server instance.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("job manager is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	server := &Server{
		router:    mux.NewRouter(),
		config:    cfg.API,
		logger:    logger.WithComponent("api"),
		metrics:   deps.Metrics,
		startTime: time.Now(),
		extra:     make(map[string]string),
	}

	var keyring *auth.Keyring
	if cfg.API.Auth.Enabled {
		keys := make([]auth.Key, 0, len(cfg.API.Auth.Keys))
		for _, k := range cfg.API.Auth.Keys {
			keys = append(keys, auth.Key{Name: k.Name, Hash: k.Hash, ExpiresAt: k.ExpiresAt})
		}
		var err error
		if keyring, err = auth.NewKeyring(keys); err != nil {
			return nil, err
		}
	}

	server.setupMiddleware(cfg.Logging.RequestLogging, keyring)
	server.setupRoutes(deps)

	server.httpServer = &http.Server{
		Addr:              cfg.GetAPIAddress(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.API.RequestTimeout,
		WriteTimeout:      cfg.API.RequestTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server, nil
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return fmt.Errorf("API server is already running")
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("API server failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting API server",
		"address", ln.Addr().String(),
		"request_timeout", s.config.RequestTimeout)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Handler returns the root handler with CORS applied. CORS wraps the router
// so preflight requests are answered even for routes without OPTIONS.
func (s *Server) Handler() http.Handler {
	if !s.config.CORS.Enabled {
		return s.router
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.config.CORS.AllowedOrigins),
		handlers.AllowedMethods(s.config.CORS.AllowedMethods),
		handlers.AllowedHeaders(s.config.CORS.AllowedHeaders),
		handlers.ExposedHeaders([]string{"X-Request-ID", "Location"}),
	)(s.router)
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Addr returns the address being listened on, or the configured address
// before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(deps Deps) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	health := apihandlers.NewHealthHandler(deps.Manager, s.logger)
	api.HandleFunc("/liveness", health.Liveness).Methods(http.MethodGet)
	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	api.HandleFunc("/version", health.Version).Methods(http.MethodGet)

	var profileSource apihandlers.ProfileSource
	if deps.Profiles != nil {
		profileSource = deps.Profiles
		prof := apihandlers.NewProfileHandler(deps.Profiles, s.logger)
		s.extra["profiles"] = "/api/v1/profiles"
		api.HandleFunc("/profiles", prof.ListProfiles).Methods(http.MethodGet)
		api.HandleFunc("/profiles/{name}", prof.GetProfile).Methods(http.MethodGet)
	}

	scans := apihandlers.NewScanHandler(deps.Manager, profileSource, s.logger)
	stream := apihandlers.NewWebSocketHandler(deps.Manager, s.logger, s.config.StreamInterval)
	api.HandleFunc("/scans", scans.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans", scans.CreateScan).Methods(http.MethodPost)
	api.HandleFunc("/scans/{id}", scans.GetScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", scans.StopScan).Methods(http.MethodDelete)
	api.HandleFunc("/scans/{id}/stream", stream.StreamScan).Methods(http.MethodGet)

	if deps.Scheduler != nil {
		sched := apihandlers.NewScheduleHandler(deps.Scheduler, s.logger)
		s.extra["schedules"] = "/api/v1/schedules"
		api.HandleFunc("/schedules", sched.ListSchedules).Methods(http.MethodGet)
		api.HandleFunc("/schedules/{name}", sched.GetSchedule).Methods(http.MethodGet)
		api.HandleFunc("/schedules/{name}/enable", sched.EnableSchedule).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{name}/disable", sched.DisableSchedule).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{name}/run", sched.RunSchedule).Methods(http.MethodPost)
	}

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
	))
	s.router.HandleFunc("/docs", s.redirectToSwagger).Methods(http.MethodGet)

	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)
}

// setupMiddleware configures middleware for the API server. A nil keyring
// leaves the API open.
func (s *Server) setupMiddleware(requestLogging bool, keyring *auth.Keyring) {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Recovery(s.logger))
	if requestLogging {
		s.router.Use(middleware.Logging(s.logger))
	}
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}
	if keyring != nil {
		s.router.Use(middleware.APIKeyAuth(keyring, s.logger, requiresKey))
		s.logger.Info("API key authentication enabled", "keys", keyring.Len())
	}
	s.router.Use(middleware.ContentType())
	s.router.Use(middleware.MaxBodySize(s.config.MaxRequestSize))
}

// requiresKey reports whether a request reaches scan or schedule endpoints.
// Health, version, metrics and docs stay public.
func requiresKey(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/v1/scans") ||
		strings.HasPrefix(r.URL.Path, "/api/v1/schedules")
}

// index returns API information for root requests.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"liveness": "/api/v1/liveness",
		"health":   "/api/v1/health",
		"version":  "/api/v1/version",
		"scans":    "/api/v1/scans",
		"docs":     "/swagger/",
	}
	if s.metrics != nil {
		endpoints["metrics"] = "/metrics"
	}
	for name, path := range s.extra {
		endpoints[name] = path
	}

	apihandlers.WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"service":   "pingscan API",
		"version":   "v1",
		"uptime":    time.Since(s.startTime).String(),
		"endpoints": endpoints,
		"timestamp": time.Now().UTC(),
	})
}

// redirectToSwagger redirects to the Swagger UI.
func (s *Server) redirectToSwagger(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/swagger/index.html", http.StatusMovedPermanently)
}
