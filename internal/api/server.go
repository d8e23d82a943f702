// Package api serves the planner over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"study-planner/internal/coordinator"
	"study-planner/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Addr        string
	Coordinator *coordinator.Coordinator
	Tasks       *service.TaskService
	Logger      *zap.SugaredLogger
	Production  bool
}

// Server is the HTTP surface of the planner.
type Server struct {
	engine *gin.Engine
	addr   string
	coord  *coordinator.Coordinator
	tasks  *service.TaskService
	log    *zap.SugaredLogger
}

func New(opts Options) *Server {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	s := &Server{
		engine: gin.New(),
		addr:   opts.Addr,
		coord:  opts.Coordinator,
		tasks:  opts.Tasks,
		log:    log,
	}
	s.engine.Use(gin.Recovery(), RequestLogger(log), Metrics())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	{
		v1.POST("/extract", s.extract)

		users := v1.Group("/users/:owner")
		users.POST("/documents", s.processDocument)
		users.GET("/documents", s.listDocuments)
		users.GET("/documents/:id", s.getDocument)
		users.POST("/plans", s.planDay)
		users.GET("/plans/:date", s.getPlan)
		users.POST("/chat", s.chat)
		users.GET("/context", s.searchContext)
		users.GET("/tasks", s.listTasks)
		users.POST("/tasks", s.createTask)
		users.PATCH("/tasks/:id/status", s.updateTaskStatus)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
