// Package server implements the OpenAI-compatible HTTP front end.
// It handles request routing, authorization, lifecycle management, and
// translates inbound calls into upstream generations and history records.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sofatutor/imagegen-proxy/internal/catalog"
	"github.com/sofatutor/imagegen-proxy/internal/config"
	"github.com/sofatutor/imagegen-proxy/internal/history"
	"github.com/sofatutor/imagegen-proxy/internal/middleware"
	"github.com/sofatutor/imagegen-proxy/internal/upstream"
	"go.uber.org/zap"
)

// Version is the application version, following semantic versioning.
const Version = "2.6.0"

// Server is the HTTP front end.
type Server struct {
	server    *http.Server
	config    *config.Config
	engine    *gin.Engine
	catalog   *catalog.Catalog
	generator upstream.Generator
	store     history.Store
	recorder  *history.Recorder
	tokens    TokenCounter
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithTokenCounter replaces the tiktoken-backed usage counter.
func WithTokenCounter(tc TokenCounter) Option {
	return func(s *Server) { s.tokens = tc }
}

// New wires the front end. The server is not started until Start is called.
func New(cfg *config.Config, cat *catalog.Catalog, gen upstream.Generator, store history.Store, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:    cfg,
		engine:    engine,
		catalog:   cat,
		generator: gen,
		store:     store,
		recorder:  history.NewRecorder(store, logger),
		logger:    logger,
		now:       time.Now,
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tokens == nil {
		s.tokens = newTiktokenCounter(logger)
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on the configured address. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Server starting", zap.String("addr", s.config.ListenAddr), zap.String("storage", s.store.Backend()))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server without interrupting active connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.engine.Use(
		middleware.RequestID(),
		middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: s.config.CORSAllowedOrigins,
			AllowedMethods: s.config.CORSAllowedMethods,
			AllowedHeaders: s.config.CORSAllowedHeaders,
		}),
		middleware.AccessLog(s.logger),
	)

	s.engine.GET("/", s.handleConsole)
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/models", s.handleModels)
		v1.GET("/styles", s.handleStyles)

		protected := v1.Group("")
		protected.Use(s.authMiddleware())
		{
			protected.POST("/chat/completions", s.handleChatCompletions)
			protected.POST("/images/generations", s.handleImageGenerations)
			protected.POST("/images/analyze", s.handleImageAnalyze)

			protected.GET("/history", s.handleHistoryList)
			protected.GET("/history/stats", s.handleHistoryStats)
			protected.GET("/history/export", s.handleHistoryExport)
			protected.DELETE("/history/:id", s.handleHistoryDelete)
			protected.POST("/history/delete", s.handleHistoryDeleteBody)
		}
	}

	s.engine.NoRoute(s.handleNotFound)
}

// HealthResponse is the response body for the health check endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Storage string `json:"storage"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Storage: s.store.Backend(),
	})
}

func (s *Server) handleNotFound(c *gin.Context) {
	writeError(c, http.StatusNotFound, "Endpoint not found: "+c.Request.URL.Path, errTypeNotFound, 0)
}
