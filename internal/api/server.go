// Package api serves the HTTP and websocket ingress: pose commands, marker
// moves, supervised goals and a live stream of names, feedback and outcomes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"map-annotator/internal/pose"
	"map-annotator/internal/router"
	"map-annotator/internal/supervisor"
)

const shutdownTimeout = 5 * time.Second

// Goals is the action front-end.
type Goals interface {
	Submit(ctx context.Context, req supervisor.GoalRequest) (supervisor.Outcome, error)
	Cancel(ctx context.Context) error
	Status(ctx context.Context) (supervisor.Snapshot, error)
	Subscribe() (<-chan supervisor.Feedback, func())
	SubscribeOutcomes() (<-chan supervisor.Outcome, func())
}

type Poses interface {
	Lookup(name string) (pose.Pose, error)
	NamedPoses() []pose.NamedPose
}

type Markers interface {
	Move(ctx context.Context, name string, p pose.Pose) error
}

// Names is the latched name-list broadcast.
type Names interface {
	Subscribe() (<-chan []string, func())
}

type Deps struct {
	Poses    Poses
	Goals    Goals
	Markers  Markers
	Names    Names
	Commands chan<- router.Command
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	Deps
	engine *gin.Engine
	logger *slog.Logger
	done   chan struct{}
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		Deps:   deps,
		engine: gin.New(),
		logger: deps.Logger.With("component", "api"),
		done:   make(chan struct{}),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	v1.GET("/poses", s.handleListPoses)
	v1.GET("/poses/:name", s.handleGetPose)
	v1.PUT("/poses/:name", s.handleMovePose)
	v1.POST("/commands", s.handleCommand)
	v1.POST("/goals", s.handleSubmitGoal)
	v1.GET("/goals/current", s.handleCurrentGoal)
	v1.DELETE("/goals/current", s.handleCancelGoal)
	v1.GET("/stream", s.handleStream)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		close(s.done)
		return err
	case <-ctx.Done():
	}
	close(s.done)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http api stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
