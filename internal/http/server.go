// Package http provides the HTTP server and request middleware.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	userHTTP "github.com/allisson/piivault/internal/user/http"
)

// Server represents the application HTTP server.
type Server struct {
	server      *http.Server
	db          *sql.DB
	logger      *slog.Logger
	userHandler *userHTTP.UserHandler
	middleware  []gin.HandlerFunc
}

// NewServer creates a new HTTP server. The extra middleware (CORS, rate
// limiting, metrics) is applied after the base stack in the order given;
// nil entries are skipped.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
	userHandler *userHTTP.UserHandler,
	extraMiddleware ...gin.HandlerFunc,
) *Server {
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		db:          db,
		logger:      logger,
		userHandler: userHandler,
		middleware:  extraMiddleware,
	}
}

// setupRouter builds the Gin engine with the full middleware stack and routes.
func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	for _, mw := range s.middleware {
		if mw != nil {
			router.Use(mw)
		}
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	if s.userHandler != nil {
		s.userHandler.RegisterRoutes(router.Group("/v1"))
	}

	return router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	if s.server.Handler == nil {
		s.server.Handler = s.setupRouter()
	}
	return s.server.Handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.setupRouter()

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can reach its dependencies.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}
	status := http.StatusOK
	ready := "ready"

	if s.db == nil {
		components["database"] = "error"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn("readiness check failed", slog.Any("error", err))
			components["database"] = "error"
		}
	}

	if components["database"] != "ok" {
		status = http.StatusServiceUnavailable
		ready = "not_ready"
	}

	c.JSON(status, gin.H{"status": ready, "components": components})
}
