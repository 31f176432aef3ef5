package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/livelabel/internal/capture"
	"github.com/tphakala/livelabel/internal/conf"
	"github.com/tphakala/livelabel/internal/logger"
	"github.com/tphakala/livelabel/internal/observability"
	"github.com/tphakala/livelabel/internal/observability/metrics"
	"github.com/tphakala/livelabel/internal/ranker"
	"github.com/tphakala/livelabel/internal/session"
)

// Controller is the session surface the API drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	State() session.State
	Err() error
	RunID() string
	Output() session.Output
	ClassifyOnce(ctx context.Context, src session.ImageSource) ([]ranker.Result, error)
}

// Server is the HTTP server for livelabel.
type Server struct {
	echo        *echo.Echo
	config      *Config
	ctrl        Controller
	broadcaster *Broadcaster
	metrics     *observability.Metrics
	stats       func() capture.Stats
	startTime   time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetrics exposes /metrics and records request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithCaptureStats includes frame loop counters in the state response.
func WithCaptureStats(f func() capture.Stats) ServerOption {
	return func(s *Server) { s.stats = f }
}

// WithBroadcaster uses b for the result stream instead of a new broadcaster.
func WithBroadcaster(b *Broadcaster) ServerOption {
	return func(s *Server) { s.broadcaster = b }
}

// WithConfig replaces the configuration derived from settings.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) { s.config = cfg }
}

// New creates the server. The server's Broadcaster must be one of the
// session's renderers for the result stream to carry anything.
func New(settings *conf.Settings, ctrl Controller, opts ...ServerOption) (*Server, error) {
	s := &Server{
		config:    ConfigFromSettings(settings),
		ctrl:      ctrl,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	if s.broadcaster == nil {
		s.broadcaster = NewBroadcaster(s.config.Heartbeat, s.config.ClientBuffer, s.httpMetrics())
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Logger = newEchoLogger(GetLogger().Module("echo"))
	s.echo.Debug = s.config.Debug
	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	GetLogger().Info("HTTP server initialized", logger.String("address", s.config.Listen))
	return s, nil
}

// Broadcaster returns the SSE renderer.
func (s *Server) Broadcaster() *Broadcaster { return s.broadcaster }

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.echo.Use(requestLogger())
	if m := s.httpMetrics(); m != nil {
		s.echo.Use(requestMetrics(m))
	}
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/state", s.getState)
	v1.GET("/output", s.getOutput)
	v1.POST("/session/start", s.startSession)
	v1.POST("/session/stop", s.stopSession)
	v1.POST("/classify", s.classifyUpload)
	v1.GET("/results/stream", s.broadcaster.ServeSSE(s.ctrl.Output))

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Run serves until ctx is cancelled, then shuts the server down and closes
// open result streams.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("HTTP server starting", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			GetLogger().Error("HTTP server error", logger.Error(err))
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown closes result streams and gracefully stops the server.
func (s *Server) Shutdown() error {
	s.broadcaster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		GetLogger().Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	GetLogger().Info("HTTP server shutdown complete")
	return nil
}

func (s *Server) httpMetrics() *metrics.HTTPMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.HTTP
}
