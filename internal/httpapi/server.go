// Package httpapi provides the HTTP API for ragd.
package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pmvlabs/ragd/internal/generation"
	"github.com/pmvlabs/ragd/internal/rag"
)

// sessionHeader carries the conversation identity. Requests without it
// share the default session.
const (
	sessionHeader  = "X-Session-ID"
	defaultSession = "default"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// UploadDir is where uploaded files are stored before extraction.
	UploadDir string

	// MaxFileSize caps uploads, in bytes.
	MaxFileSize int64

	// Backend, EmbeddingModel and GenerationModel are reported by the
	// detailed health endpoint.
	Backend         string
	EmbeddingModel  string
	GenerationModel string
}

// Server provides the HTTP endpoints for ragd.
type Server struct {
	echo     *echo.Echo
	pipeline *rag.Pipeline
	gateway  generation.Gateway
	sessions *generation.SessionStore
	logger   *zap.Logger
	config   *Config
}

// NewServer creates a new HTTP server.
func NewServer(pipeline *rag.Pipeline, gateway generation.Gateway, sessions *generation.SessionStore, logger *zap.Logger, cfg *Config) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway cannot be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8000}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	metrics := NewHTTPMetrics(logger)
	e.Use(metrics.MetricsMiddleware())

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		gateway:  gateway,
		sessions: sessions,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/text", s.handleQueryText)
	v1.POST("/text/file", s.handleQueryFile)
	v1.POST("/file", s.handleUploadFile)
	v1.DELETE("/file/:id", s.handleDeleteFile)
	v1.GET("/stats", s.handleStats)
}

// sessionID resolves the conversation identity for a request.
func (s *Server) sessionID(c echo.Context) string {
	if id := c.Request().Header.Get(sessionHeader); id != "" {
		return id
	}
	return defaultSession
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
