// Package http exposes the codematrix API: starting a repository run,
// polling its status, and asking questions about the indexed code.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/codematrix/internal/acquire"
	"github.com/fyrsmithlabs/codematrix/internal/config"
	"github.com/fyrsmithlabs/codematrix/internal/index"
	"github.com/fyrsmithlabs/codematrix/internal/logging"
	"github.com/fyrsmithlabs/codematrix/internal/pipeline"
	"github.com/fyrsmithlabs/codematrix/internal/query"
	"github.com/fyrsmithlabs/codematrix/internal/state"
)

// Starter begins a repository run.
type Starter interface {
	Start(ctx context.Context, sourceURL string) (string, error)
}

// Answerer answers questions and explains code.
type Answerer interface {
	Ask(ctx context.Context, req query.Request) query.Response
	Explain(ctx context.Context, code, level string) (string, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Pipeline Starter
	Tracker  *state.Tracker
	Registry *index.Registry
	Engine   Answerer

	// Providers reports configured AI credentials for /health.
	Providers func() map[string]bool
}

// Server provides HTTP endpoints for codematrix.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  *zap.Logger
	config  *Config
	metrics *apiMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	RateLimitPerMinute int
	CORSOrigins        []string
}

// FromSettings converts the file/env configuration.
func FromSettings(s config.ServerConfig) *Config {
	return &Config{
		Host:               s.Host,
		Port:               s.Port,
		RateLimitPerMinute: s.RateLimitPerMinute,
		CORSOrigins:        s.CORSOrigins,
	}
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Pipeline == nil || deps.Tracker == nil || deps.Registry == nil || deps.Engine == nil {
		return nil, fmt.Errorf("pipeline, tracker, registry and engine are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 60
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger,
		config:  cfg,
		metrics: newAPIMetrics(nil, logger),
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(s.metrics.middleware(statusStreamRoute))
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

	s.registerRoutes()

	return s, nil
}

// rateLimiter limits /api/v1 requests per client IP.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	perMinute := s.config.RateLimitPerMinute
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     perMinute,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			s.logger.Debug("rate limit exceeded", zap.String("client", identifier))
			s.metrics.rateLimited(c.Request().Context(), c.Path())
			return echo.NewHTTPError(http.StatusTooManyRequests,
				fmt.Sprintf("rate limit exceeded: %d requests per minute", perMinute))
		},
	})
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.rateLimiter())
	v1.POST("/clone", s.handleClone)
	v1.GET("/status", s.handleStatus)
	v1.GET("/status/stream", s.handleStatusStream)
	v1.POST("/status/reset", s.handleReset)
	v1.GET("/repo_info", s.handleRepoInfo)
	v1.GET("/repositories", s.handleRepositories)
	v1.POST("/chat", s.handleChat)
	v1.POST("/explain", s.handleExplain)
}

func (s *Server) handleHealth(c echo.Context) error {
	providers := map[string]bool{}
	if s.deps.Providers != nil {
		providers = s.deps.Providers()
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:            "healthy",
		Timestamp:         time.Now().UTC(),
		APIKeysConfigured: providers,
	})
}

func (s *Server) handleClone(c echo.Context) error {
	var req CloneRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid clone request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "repo_url field is required")
	}

	runID, err := s.deps.Pipeline.Start(c.Request().Context(), req.RepoURL)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrBusy):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, acquire.ErrAcquisition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server is shutting down")
	default:
		s.logger.Error("failed to start pipeline", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to start processing")
	}

	return c.JSON(http.StatusAccepted, CloneResponse{
		RunID:   runID,
		Status:  string(state.StatusCloning),
		Message: "Repository processing started.",
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, newStatusResponse(s.deps.Tracker.Snapshot()))
}

func (s *Server) handleReset(c echo.Context) error {
	snap := s.deps.Tracker.Reset()
	s.logger.Info("processing state reset")
	return c.JSON(http.StatusOK, newStatusResponse(snap))
}

func (s *Server) handleRepoInfo(c echo.Context) error {
	snap := s.deps.Tracker.Snapshot()
	name := snap.ActiveRepoID()
	if name == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no repository loaded")
	}
	return c.JSON(http.StatusOK, RepoInfoResponse{
		RepoName:        name,
		RepoDescription: snap.Description,
	})
}

func (s *Server) handleRepositories(c echo.Context) error {
	active := s.deps.Tracker.Snapshot().ActiveRepoID()
	return c.JSON(http.StatusOK, RepositoriesResponse{
		Repositories: listRepositories(s.deps.Registry, active),
	})
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	resp := s.deps.Engine.Ask(c.Request().Context(), query.Request{
		Question:       req.Question,
		TopK:           req.TopK,
		FocusFile:      req.FocusFile,
		CursorPosition: req.CursorPosition,
	})
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExplain(c echo.Context) error {
	var req ExplainRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid explain request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Code) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code field is required")
	}

	level := query.NormalizeLevel(req.Complexity)
	text, err := s.deps.Engine.Explain(c.Request().Context(), req.Code, level)
	if err != nil {
		if errors.Is(err, query.ErrEmptyCode) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, fmt.Sprintf("explanation failed: %v", err))
	}
	return c.JSON(http.StatusOK, ExplainResponse{Explanation: text, Complexity: level})
}

// Handler returns the router, for tests and embedding in other servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := s.Addr()
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
