// Package server assembles the sign-in service: it wires configuration into
// the flow, account and session components and serves them over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/gobeaver/beaver-signin/cache"
	"github.com/gobeaver/beaver-signin/flow"
	"github.com/gobeaver/beaver-signin/session"
)

// ErrInvalidConfig is returned for unusable configuration.
var ErrInvalidConfig = errors.New("invalid server configuration")

const (
	readHeaderTimeout = 10 * time.Second
	requestTimeout    = 60 * time.Second
	healthTimeout     = 2 * time.Second
)

// Deps are the components a Server routes to. Cache and Registry are
// optional.
type Deps struct {
	DB       *gorm.DB
	Cache    cache.Cache
	Flow     *flow.Handler
	Sessions *session.Issuer
	Registry *prometheus.Registry
	Logger   *slog.Logger

	// Background is waited for after the HTTP server has drained, e.g.
	// pending welcome notifications.
	Background interface{ Wait() }
	// Closers run in order on Close.
	Closers []func() error
}

// Server is the HTTP front of the sign-in service.
type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.DB == nil || deps.Flow == nil || deps.Sessions == nil {
		return nil, fmt.Errorf("%w: database, flow and sessions are required", ErrInvalidConfig)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	s := &Server{cfg: cfg, deps: deps, logger: logger.With("component", "server")}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(s.logger),
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
	)

	r.Get("/healthz", s.health)
	if s.deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{Registry: s.deps.Registry}))
	}

	r.Get("/api/auth/session", s.currentSession)
	r.Post("/api/auth/logout", s.logout)
	s.deps.Flow.Routes(r)
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully: in-flight
// requests drain, background work finishes and the closers run.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	shutdownErr := srv.Shutdown(shutdownCtx)

	if s.deps.Background != nil {
		s.deps.Background.Wait()
	}
	closeErr := s.Close()

	return errors.Join(serveErr, shutdownErr, closeErr)
}

// Close runs the closers.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.deps.Closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.deps.Closers = nil
	return errors.Join(errs...)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			// query strings carry codes and state
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
