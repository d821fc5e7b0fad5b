// Package api provides the HTTP surface of Taskcast: task and event operations over the engine,
// SSE streaming, and JWT-scoped authorization, following the teacher's echo/v5 server shape.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/weightwave/taskcast/pkg/config"
	"github.com/weightwave/taskcast/pkg/taskauth"
	"github.com/weightwave/taskcast/pkg/taskcast"
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	engine     *taskcast.Engine
	long       taskcast.LongTermStore // nil when long-term archival is disabled; used by /health
	authorizer *taskauth.Authorizer
}

// NewServer creates a new API server with Echo v5 and registers all routes.
func NewServer(cfg *config.Config, engine *taskcast.Engine, long taskcast.LongTermStore, authorizer *taskauth.Authorizer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = httpErrorHandler

	s := &Server{
		echo:       e,
		cfg:        cfg,
		engine:     engine,
		long:       long,
		authorizer: authorizer,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.createTaskHandler, requireScope(s.authorizer, taskcast.ScopeTaskCreate))
	v1.GET("/tasks/:id", s.getTaskHandler, requireScope(s.authorizer, taskcast.ScopeEventSubscribe))
	v1.PATCH("/tasks/:id/status", s.transitionTaskHandler, requireScope(s.authorizer, taskcast.ScopeTaskManage))
	v1.POST("/tasks/:id/events", s.publishEventsHandler, requireScope(s.authorizer, taskcast.ScopeEventPublish))
	v1.GET("/tasks/:id/events", s.streamEventsHandler, requireScope(s.authorizer, taskcast.ScopeEventSubscribe))
	v1.GET("/tasks/:id/events/history", s.historyEventsHandler, requireScope(s.authorizer, taskcast.ScopeEventHistory))
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used by test infrastructure
// to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
