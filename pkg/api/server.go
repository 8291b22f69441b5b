package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/cuemby/refit/pkg/log"
	"github.com/cuemby/refit/pkg/maintenance"
	"github.com/cuemby/refit/pkg/metrics"
	"github.com/cuemby/refit/pkg/types"
	"github.com/cuemby/refit/pkg/updater"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Updater is the orchestrator surface exposed over HTTP
type Updater interface {
	Check(ctx context.Context) (*types.ReleaseInfo, error)
	Start(ctx context.Context, target string) (updater.StartResult, error)
	Status() types.SessionStatus
	ListBackups() ([]*types.BackupManifest, error)
	Rollback(ctx context.Context, name string) (types.SessionStatus, error)
	History(limit int) ([]*types.RunRecord, error)
}

// Config configures a Server
type Config struct {
	Updater Updater
	Gate    *maintenance.Gate
	// ChecksPerMinute limits the check endpoint; zero disables the limit
	ChecksPerMinute int
	// UpstreamURL is served behind the maintenance gate for every path the
	// API does not own
	UpstreamURL string
}

// Server is the HTTP surface of refit serve
type Server struct {
	updater Updater
	gate    *maintenance.Gate
	checks  *rate.Limiter
	mux     *http.ServeMux
	handler http.Handler
	http    *http.Server
	logger  zerolog.Logger
}

// NewServer creates the API server and registers its routes
func NewServer(cfg Config) (*Server, error) {
	if cfg.Updater == nil {
		return nil, fmt.Errorf("updater is required")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("maintenance gate is required")
	}

	limit := rate.Inf
	burst := 1
	if cfg.ChecksPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.ChecksPerMinute))
		burst = cfg.ChecksPerMinute
	}

	s := &Server{
		updater: cfg.Updater,
		gate:    cfg.Gate,
		checks:  rate.NewLimiter(limit, burst),
		mux:     http.NewServeMux(),
		logger:  log.WithComponent("api"),
	}

	s.route("GET /api/update/check", s.handleCheck)
	s.route("POST /api/update/start", s.handleStart)
	s.route("GET /api/update/status", s.handleStatus)
	s.route("GET /api/update/backups", s.handleBackups)
	s.route("GET /api/update/history", s.handleHistory)
	s.route("POST /api/update/rollback", s.handleRollback)
	s.route("GET /api/maintenance", s.handleMaintenanceGet)
	s.route("POST /api/maintenance", s.handleMaintenanceEnable)
	s.route("DELETE /api/maintenance", s.handleMaintenanceDisable)
	s.registerHealth()

	if cfg.UpstreamURL != "" {
		target, err := url.Parse(cfg.UpstreamURL)
		if err != nil || target.Host == "" {
			return nil, fmt.Errorf("invalid upstream URL %q", cfg.UpstreamURL)
		}
		s.mux.Handle("/", httputil.NewSingleHostReverseProxy(target))
	}

	s.handler = s.gate.Middleware(s.mux)
	s.http = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Handler returns the gated handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on an existing listener. It returns nil at once when
// Shutdown has already been called.
func (s *Server) Serve(lis net.Listener) error {
	metrics.UpdateComponent(metrics.ComponentAPI, true, "")
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("API listening")

	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	return s.http.Shutdown(ctx)
}

func (s *Server) route(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(pattern, h))
}
