// Package http provides the HTTP API for extractd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/extractd/internal/extraction"
	"github.com/fyrsmithlabs/extractd/internal/session"
)

// Server provides HTTP endpoints for extractd.
type Server struct {
	echo    *echo.Echo
	service extraction.Service
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(svc extraction.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("extraction service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9190,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
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

	s := &Server{
		echo:    e,
		service: svc,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extractions", s.handleCreateExtraction)
	v1.GET("/extractions", s.handleListExtractions)
	v1.GET("/extractions/compare", s.handleCompare)
	v1.GET("/extractions/:id", s.handleGetExtraction)
	v1.GET("/extractions/:id/result", s.handleGetResult)
	v1.POST("/extractions/:id/resolve", s.handleResolve)
	v1.POST("/detect-type", s.handleDetectType)
	v1.POST("/parse/multi", s.handleParseMulti)
	v1.POST("/score", s.handleScore)
	v1.GET("/strategies", s.handleStrategies)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleCreateExtraction registers an extraction job and starts it in the
// background. The response carries the session ID for polling.
func (s *Server) handleCreateExtraction(c echo.Context) error {
	var req extraction.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid extraction request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	sess, err := s.service.CreateSession(c.Request().Context(), &req)
	if err != nil {
		return s.mapError(err)
	}
	if err := s.service.StartExtraction(c.Request().Context(), sess.ID); err != nil {
		return s.mapError(err)
	}

	// Re-read so the response reflects the running state.
	sess, err = s.service.GetProgress(c.Request().Context(), sess.ID)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusAccepted, sess)
}

// handleListExtractions returns snapshots of all tracked sessions.
func (s *Server) handleListExtractions(c echo.Context) error {
	sessions := s.service.GetAllProgress(c.Request().Context())
	return c.JSON(http.StatusOK, ListResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// handleGetExtraction returns one session's progress snapshot.
func (s *Server) handleGetExtraction(c echo.Context) error {
	sess, err := s.service.GetProgress(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// handleGetResult returns the result of a completed session. A session
// still in flight yields 409.
func (s *Server) handleGetResult(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.service.GetProgress(c.Request().Context(), id)
	if err != nil {
		return s.mapError(err)
	}
	switch sess.Status {
	case session.StatusCompleted:
		return c.JSON(http.StatusOK, sess.Result)
	case session.StatusFailed:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, sess.Error)
	default:
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("session is %s, result not ready", sess.Status))
	}
}

// handleResolve applies manual conflict choices to a completed session.
func (s *Server) handleResolve(c echo.Context) error {
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Choices) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "choices field is required")
	}

	mr, err := s.service.ResolveConflicts(c.Request().Context(), c.Param("id"), req.Choices, req.ResolvedBy)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, mr)
}

// handleCompare diffs the field sets of two completed sessions, given as
// the "a" and "b" query parameters.
func (s *Server) handleCompare(c echo.Context) error {
	idA, idB := c.QueryParam("a"), c.QueryParam("b")
	if idA == "" || idB == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameters a and b are required")
	}

	cmp, err := s.service.CompareSessions(c.Request().Context(), idA, idB)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, cmp)
}

// handleDetectType classifies a document.
func (s *Server) handleDetectType(c echo.Context) error {
	var req DetectTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	det := s.service.DetectDocumentType(c.Request().Context(), req.Text, req.FileName)
	return c.JSON(http.StatusOK, det)
}

// handleParseMulti runs a synchronous multi-strategy parse.
func (s *Server) handleParseMulti(c echo.Context) error {
	var req extraction.MultiRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text field is required")
	}

	mr, err := s.service.ParseWithStrategies(c.Request().Context(), &req)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, mr)
}

// handleScore scores a field set against the contract catalog.
func (s *Server) handleScore(c echo.Context) error {
	var req ScoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "fields field is required")
	}

	score, missing := s.service.ScoreCompleteness(req.Fields)
	return c.JSON(http.StatusOK, ScoreResponse{
		Score:         score,
		MissingFields: missing,
	})
}

// handleStrategies lists available strategy IDs.
func (s *Server) handleStrategies(c echo.Context) error {
	return c.JSON(http.StatusOK, StrategiesResponse{
		Strategies: s.service.Strategies(),
	})
}

// mapError converts service errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service is shutting down")
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
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
