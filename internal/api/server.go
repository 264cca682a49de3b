// Package api exposes the generation engine over HTTP: a blocking JSON
// endpoint, an SSE streaming endpoint, Prometheus metrics and a health
// probe.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/kiln/internal/inference"
)

// Generator is the engine surface the server consumes.
type Generator interface {
	Generate(ctx context.Context, req *inference.Request, stream inference.StreamFunc) (*inference.Result, error)
}

type Server struct {
	engine   Generator
	defaults inference.GenDefaults
	clock    func() time.Time
}

func NewServer(engine Generator, defaults inference.GenDefaults) *Server {
	return &Server{
		engine:   engine,
		defaults: defaults,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.POST("/v1/generate/stream", s.handleGenerateStream)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
