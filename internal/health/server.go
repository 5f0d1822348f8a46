// Package health exposes a liveness/readiness HTTP surface using the same
// echo + otelecho stack as the rest of the fabric's services
// (apps/iam-service/cmd/api/main.go), scoped narrowly to health checks —
// the business-facing admin/order HTTP API that stack also serves is out
// of scope (spec.md Non-goals).
package health

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
)

// Checker reports whether a subsystem has finished its own startup.
// cmd/relay/main.go adapts the Bootstrapper's Complete channel to this
// shape; relay link subscription state is not part of that check.
type Checker func() bool

// Server is the liveness/readiness HTTP endpoint.
type Server struct {
	echo *echo.Echo
	log  *zap.Logger
}

// NewServer builds the health server. /livez always reports 200 once the
// process is running; /readyz reports 200 when ready is nil or returns true
// and 503 otherwise, so a load balancer or orchestrator does not route
// traffic to a node that has not finished starting.
func NewServer(serviceName string, ready Checker, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Recover())

	e.GET("/livez", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/readyz", func(c echo.Context) error {
		if ready == nil || ready() {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})

	return &Server{echo: e, log: log}
}

// Start runs the HTTP server in the foreground; callers should invoke it in
// its own goroutine.
func (s *Server) Start(addr string) {
	s.log.Info("health server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		s.log.Error("health server failure", zap.Error(err))
	}
}

// Shutdown gracefully drains in-flight health checks.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
