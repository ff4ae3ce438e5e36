package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/resoul/shortsgen/config"
	"github.com/resoul/shortsgen/models"
	"github.com/resoul/shortsgen/services"
)

// Submitter is the slice of the worker pool the API needs.
type Submitter interface {
	Submit(task *models.Task) error
}

// Server exposes the job-submission and status HTTP surface.
type Server struct {
	echo  *echo.Echo
	addr  string
	tasks *services.TaskStore
	pool  Submitter
}

func NewServer(cfg config.ServerConfig, pool Submitter, tasks *services.TaskStore) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:  e,
		addr:  cfg.Addr(),
		tasks: tasks,
		pool:  pool,
	}

	e.GET("/health", s.health)
	e.POST("/api/generate", s.generate)
	e.POST("/api/fetch", s.fetch)
	e.GET("/api/tasks/:id", s.taskStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
