// Package httpapi exposes the matcher and the geocoder over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bastiangx/streetmatch/internal/logger"
	"github.com/bastiangx/streetmatch/internal/metrics"
	"github.com/bastiangx/streetmatch/pkg/geocode"
	"github.com/bastiangx/streetmatch/pkg/match"
)

const transport = "http"

// Matcher is the part of *match.Engine the server needs.
type Matcher interface {
	Compare(ctx context.Context, name1, name2 string, feedback *int) (match.Verdict, error)
	Info() match.Info
}

// Config holds HTTP server configuration.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	matcher Matcher
	geo     geocode.Geocoder
	metrics *metrics.Metrics
	config  *Config
	log     *log.Logger
}

// NewServer creates a new HTTP server. geo and mx may be nil; /geolocate
// then answers 503 and /metrics is not mounted.
func NewServer(m Matcher, geo geocode.Geocoder, mx *metrics.Metrics, cfg *Config) (*Server, error) {
	if m == nil {
		return nil, fmt.Errorf("matcher cannot be nil")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 5000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	s := &Server{
		echo:    e,
		matcher: m,
		geo:     geo,
		metrics: mx,
		config:  cfg,
		log:     logger.New("http"),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.log.Debug("request",
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"status", c.Response().Status,
			"duration", time.Since(start),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/compare", s.handleCompare)
	s.echo.POST("/geolocate", s.handleGeolocate)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("/api")
	api.GET("/info", s.handleInfo)
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.log.Infof("Listening on %s", addr)
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down")
	return s.echo.Shutdown(ctx)
}
