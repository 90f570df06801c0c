// Package server exposes game generation over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zen-systems/gameforge/pkg/artifact"
	"github.com/zen-systems/gameforge/pkg/pipeline"
	"github.com/zen-systems/gameforge/pkg/state"
)

// Generator runs one generation. The cmd layer binds it to pipeline.Run.
type Generator interface {
	Generate(ctx context.Context, runID string, lessonPlan state.Document) (*pipeline.RunResult, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, runID string, lessonPlan state.Document) (*pipeline.RunResult, error)

func (f GeneratorFunc) Generate(ctx context.Context, runID string, lessonPlan state.Document) (*pipeline.RunResult, error) {
	return f(ctx, runID, lessonPlan)
}

// Config holds HTTP server configuration.
type Config struct {
	Host   string
	Port   int
	APIKey string
	// AllowOrigins enables CORS for the listed origins.
	AllowOrigins []string
	// Registry is served at /metrics when set.
	Registry *prometheus.Registry
}

// Server provides the HTTP endpoints.
type Server struct {
	echo      *echo.Echo
	generator Generator
	logger    *zap.Logger
	config    *Config
}

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// NewServer creates a new HTTP server.
func NewServer(generator Generator, logger *zap.Logger, cfg *Config) (*Server, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if len(cfg.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowCredentials: true,
		}))
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		generator: generator,
		logger:    logger,
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.Registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{})))
	}

	api := s.echo.Group("/api", s.requireAPIKey)
	api.POST("/generate", s.handleGenerate)
}

// GenerateRequest is the request body for POST /api/generate.
type GenerateRequest struct {
	LessonPlan state.Document `json:"lesson_plan"`
	UserID     string         `json:"user_id"`
	RunID      string         `json:"run_id,omitempty"`
}

// GenerateResponse is the response body for POST /api/generate.
type GenerateResponse struct {
	RunID           string   `json:"run_id"`
	GameHTML        string   `json:"game_html"`
	DesignDoc       string   `json:"design_doc"`
	Title           string   `json:"title"`
	Status          string   `json:"status"`
	Errors          []string `json:"errors"`
	DesignIteration int      `json:"design_iteration"`
	CodeIteration   int      `json:"code_iteration"`
	ShipApproved    bool     `json:"ship_approved"`
}

// ErrorResponse is returned when a run fails or produces no game.
type ErrorResponse struct {
	Error  string   `json:"error"`
	RunID  string   `json:"run_id,omitempty"`
	Status string   `json:"status,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.APIKey)) != 1 {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		}
		return next(c)
	}
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid generate request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if len(req.LessonPlan) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "lesson_plan is required"})
	}
	if strings.TrimSpace(req.UserID) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required"})
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	} else if !runIDPattern.MatchString(runID) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "run_id must be 1-64 letters, digits, '-' or '_'"})
	}

	log := s.logger.With(zap.String("run_id", runID), zap.String("user_id", req.UserID))
	log.Info("generating game", zap.String("title", req.LessonPlan.Title()))

	res, err := s.generator.Generate(c.Request().Context(), runID, req.LessonPlan)
	if res == nil {
		if err == nil {
			err = errors.New("generator returned no result")
		}
		log.Error("game generation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), RunID: runID})
	}

	game := artifact.FromState(res.State)
	if err != nil || game.Failed() || !game.HasCode() {
		msg := "game generation failed - no code produced"
		if err != nil {
			msg = err.Error()
		}
		log.Error("game generation failed", zap.String("status", game.Status), zap.String("error", msg))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:  msg,
			RunID:  runID,
			Status: game.Status,
			Errors: game.Errors,
		})
	}

	return c.JSON(http.StatusOK, GenerateResponse{
		RunID:           runID,
		GameHTML:        game.HTML,
		DesignDoc:       game.DesignDoc,
		Title:           game.Title,
		Status:          game.Status,
		Errors:          game.Errors,
		DesignIteration: game.DesignIteration,
		CodeIteration:   game.CodeIteration,
		ShipApproved:    game.ShipApproved,
	})
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
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
