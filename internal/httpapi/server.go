// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

// Package httpapi exposes the auth flows over HTTP with echo.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/oops"

	"github.com/keyward/keyward/internal/auth"
)

// Defaults for Config fields left zero.
const (
	DefaultAddr           = ":1234"
	DefaultRequestTimeout = 30 * time.Second
	DefaultBodyLimit      = "64K"
)

// Config controls the public listener.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	CORSOrigins    []string
	SecureCookies  bool
}

// Recorder receives request and gate outcomes. *observability.Metrics
// satisfies it.
type Recorder interface {
	ObserveHTTPRequest(method, route string, status int)
	ObserveGate(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveHTTPRequest(string, string, int) {}
func (nopRecorder) ObserveGate(string)                     {}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// Server is the public API server.
type Server struct {
	cfg      Config
	service  *auth.Service
	gate     *auth.Gate
	logger   *slog.Logger
	recorder Recorder
	echo     *echo.Echo

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// New builds the router. Nothing listens until Start.
func New(service *auth.Service, gate *auth.Gate, cfg Config, opts ...Option) (*Server, error) {
	if service == nil || gate == nil {
		return nil, oops.Code("HTTP_CONFIG_INVALID").Errorf("auth service and gate are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		cfg:      cfg,
		service:  service,
		gate:     gate,
		logger:   slog.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:        newRequestID,
		RequestIDHandler: attachRequestID,
	}))
	e.Use(s.accessLog)
	if len(cfg.CORSOrigins) > 0 {
		matcher, err := newOriginMatcher(cfg.CORSOrigins)
		if err != nil {
			return nil, err
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOriginFunc:  matcher.Allow,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, VersionHeader},
			AllowCredentials: true,
		}))
	}
	e.Use(middleware.BodyLimit(DefaultBodyLimit))
	e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
		Timeout: cfg.RequestTimeout,
	}))
	e.Use(checkVersion)

	s.echo = e
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.echo.GET("/", s.index)
	s.echo.GET("/protected", s.protected, s.requireSession)

	api := s.echo.Group("/api/auth")
	api.POST("/register", s.register)
	api.POST("/login", s.login)
	api.GET("/verify-email/:token", s.verifyEmail)
	api.POST("/reset-password", s.requestPasswordReset)
	api.POST("/reset-password/:token", s.confirmPasswordReset)
	api.POST("/resend-verification", s.resendVerification)
	api.GET("/me", s.me, s.requireSession)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and serves in the background. The
// returned channel receives a serve failure, if any, and is closed when
// serving stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("http server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("http server started", "addr", listener.Addr().String(), "api_version", APIVersion())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires. Stopping a server that
// is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
