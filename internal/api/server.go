// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/delta-monitor/internal/logging"
	"github.com/delta-monitor/internal/storage"
	"github.com/delta-monitor/internal/types"
)

// PortfolioServiceInterface defines the snapshot-building operation the
// handlers depend on.
type PortfolioServiceInterface interface {
	BuildPortfolioSnapshot(ctx context.Context, evmAddress, coreAddress string) (*types.PortfolioSnapshot, error)
}

// SnapshotStoreInterface defines the persistence operations the handlers
// depend on. A nil store disables persistence and the history endpoints.
type SnapshotStoreInterface interface {
	Save(ctx context.Context, snapshot *types.PortfolioSnapshot) (uuid.UUID, error)
	Latest(ctx context.Context, evmAddress string) (*types.PortfolioSnapshot, error)
	History(ctx context.Context, evmAddress string, limit int) ([]storage.SnapshotRecord, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	portfolio  PortfolioServiceInterface
	snapshots  SnapshotStoreInterface
	config     *ServerConfig
	log        zerolog.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns sensible timeouts for the portfolio API.
func DefaultServerConfig(host, port string) *ServerConfig {
	return &ServerConfig{
		Host:            host,
		Port:            port,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// NewServer creates a new API server instance. snapshots may be nil when no
// database is configured.
func NewServer(config *ServerConfig, portfolio PortfolioServiceInterface, snapshots SnapshotStoreInterface, log zerolog.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		portfolio: portfolio,
		snapshots: snapshots,
		config:    config,
		log:       logging.Component(log, "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.log))
	s.router.Use(RecoveryMiddleware(s.log))
	s.router.Use(CORSMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/portfolio/{address}", s.handleGetPortfolio).Methods(http.MethodGet)
	v1.HandleFunc("/portfolio/{address}/latest", s.handleGetLatestSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/portfolio/{address}/history", s.handleGetSnapshotHistory).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Router returns the underlying router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting api server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
