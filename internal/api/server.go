// Package api exposes the HTTP surface: signal ingestion, detection
// triggers, the approval channel, and the query endpoints.
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

	"github.com/sentinelstack/migration-sentinel/internal/actor"
	"github.com/sentinelstack/migration-sentinel/internal/engine"
	"github.com/sentinelstack/migration-sentinel/internal/history"
	"github.com/sentinelstack/migration-sentinel/internal/store"
)

// Server hosts the HTTP API.
type Server struct {
	address         string
	gracefulTimeout time.Duration
	router          *gin.Engine
	logger          *slog.Logger
}

// Options bundles the server dependencies.
type Options struct {
	Address         string
	GracefulTimeout time.Duration
	Store           *store.Store
	Pipeline        *engine.Pipeline
	Actor           *actor.Actor
	History         *history.Analyzer
	Registry        *prometheus.Registry
	Logger          *slog.Logger
}

// NewServer builds the router and wires every route.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger))

	h := &handlers{
		store:    opts.Store,
		pipeline: opts.Pipeline,
		actor:    opts.Actor,
		history:  opts.History,
		logger:   opts.Logger,
	}

	router.GET("/health", h.health)
	if opts.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/signals/ingest", h.ingestSignals)
		v1.POST("/detect/run", h.runDetection)

		v1.GET("/actions/pending", h.pendingActions)
		v1.GET("/actions/:id", h.getAction)
		v1.POST("/actions/approve", h.approveAction)

		v1.GET("/incidents", h.listIncidents)
		v1.GET("/incidents/patterns", h.recurringPatterns)
		v1.GET("/incidents/:id", h.getIncident)
		v1.POST("/incidents/:id/feedback", h.submitFeedback)

		v1.GET("/audit", h.auditTrail)
	}

	return &Server{
		address:         opts.Address,
		gracefulTimeout: opts.GracefulTimeout,
		router:          router,
		logger:          opts.Logger,
	}
}

// Router exposes the underlying handler, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", s.address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.gracefulTimeout)
	defer cancel()
	s.logger.Info("http server draining", "timeout", s.gracefulTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
