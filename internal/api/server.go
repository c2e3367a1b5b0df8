// Package api provides the HTTP API of nmapdeck. It exposes scan execution,
// report parsing, scan history, exports, a WebSocket event stream and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apihandlers "github.com/anstrom/nmapdeck/internal/api/handlers"
	"github.com/anstrom/nmapdeck/internal/api/middleware"
	"github.com/anstrom/nmapdeck/internal/config"
	"github.com/anstrom/nmapdeck/internal/export"
	"github.com/anstrom/nmapdeck/internal/history"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
)

// Server timeout constants.
const (
	defaultShutdownTimeout = 30 * time.Second
	idleTimeout            = 60 * time.Second
	systemMetricsInterval  = 15 * time.Second
)

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	events     *apihandlers.WebSocketHandler
	logger     *slog.Logger
	metrics    *metrics.PrometheusMetrics

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new API server. Scans go through scanner and completed
// scans are recorded by clients in store. A nil pm uses the process-wide
// metrics.
func New(cfg *config.Config, scanner apihandlers.ScanRunner, store history.Store,
	pm *metrics.PrometheusMetrics) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if scanner == nil || store == nil {
		return nil, fmt.Errorf("scanner and history store are required")
	}
	if pm == nil {
		pm = metrics.GetGlobalMetrics()
	}

	logger := logging.Default().With("component", "api")

	server := &Server{
		router:  mux.NewRouter(),
		config:  cfg,
		events:  apihandlers.NewWebSocketHandler(logger, cfg.API.CORSOrigins),
		logger:  logger,
		metrics: pm,
	}

	server.setupMiddleware()
	server.setupRoutes(scanner, store)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.API.CORSOrigins),
		handlers.AllowedHeaders([]string{"Content-Type", middleware.RequestIDHeader}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.ExposedHeaders([]string{middleware.RequestIDHeader, "Retry-After"}),
	)(server.router)

	server.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.API.ListenAddr, strconv.Itoa(cfg.API.Port)),
		Handler:           corsHandler,
		ReadTimeout:       cfg.API.ReadTimeout,
		ReadHeaderTimeout: cfg.API.ReadTimeout,
		WriteTimeout:      cfg.API.WriteTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server, nil
}

// Start listens and serves until ctx is canceled, then shuts down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.listener != nil {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting API server",
		"address", ln.Addr().String(),
		"read_timeout", s.httpServer.ReadTimeout,
		"write_timeout", s.httpServer.WriteTimeout,
		"cors_origins", s.config.API.CORSOrigins)

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	go s.metrics.StartPeriodicUpdates(metricsCtx, systemMetricsInterval)

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
		_ = s.events.Close()
		return err
	}
}

// Stop disconnects WebSocket clients and gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if err := s.events.Close(); err != nil {
		s.logger.Warn("Failed to close WebSocket hub", "error", err)
	}

	timeout := s.config.API.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped successfully")
	return nil
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes(scanner apihandlers.ScanRunner, store history.Store) {
	maxSize := s.config.API.MaxRequestSize
	exporter := export.NewExporter(s.config.Scanning.OutputDir)

	health := apihandlers.NewHealthHandler(s.config.Scanning.NmapPath, scanner, s.logger)
	scans := apihandlers.NewScanHandler(scanner, s.events, s.metrics, s.logger, maxSize)
	hist := apihandlers.NewHistoryHandler(store, exporter, s.logger, maxSize)
	exports := apihandlers.NewExportHandler(exporter, s.logger, maxSize)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", health.Health).Methods(http.MethodGet)

	var runScan http.Handler = http.HandlerFunc(scans.RunScan)
	if rl := s.config.API.RateLimit; rl.Enabled {
		runScan = middleware.RateLimit(rl.RequestsPerSecond, rl.BurstSize, s.logger)(runScan)
	}
	api.Handle("/scan/run", runScan).Methods(http.MethodPost)
	api.HandleFunc("/scan/parse", scans.ParseScan).Methods(http.MethodPost)

	api.HandleFunc("/history", hist.ListHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/add", hist.AddHistory).Methods(http.MethodPost)
	api.HandleFunc("/history/get/{id}", hist.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/clear", hist.ClearHistory).Methods(http.MethodPost)

	api.HandleFunc("/export/csv", exports.ExportCSV).Methods(http.MethodPost)
	api.HandleFunc("/export/xml", exports.ExportXML).Methods(http.MethodPost)
	api.HandleFunc("/export/list", exports.ListExports).Methods(http.MethodGet)

	api.HandleFunc("/ws", s.events.ServeWS).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).
		Methods(http.MethodGet)

	s.router.HandleFunc("/", s.index).Methods(http.MethodGet)
}

// setupMiddleware configures middleware for the API server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))

	if s.config.Logging.RequestLogging {
		s.router.Use(middleware.Logging(s.logger))
	}

	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.ContentType())
}

// index describes the service for requests to the root path.
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service": "nmapdeck",
		"endpoints": map[string]string{
			"health":  "/api/health",
			"scan":    "/api/scan/run",
			"parse":   "/api/scan/parse",
			"history": "/api/history",
			"exports": "/api/export/list",
			"events":  "/api/ws",
			"metrics": "/metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode API index response", "error", err)
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GetRouter returns the configured router.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetAddress returns the bound address once started, the configured one
// before that.
func (s *Server) GetAddress() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// IsRunning checks if the server accepts connections.
func (s *Server) IsRunning() bool {
	conn, err := net.DialTimeout("tcp", s.GetAddress(), time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
