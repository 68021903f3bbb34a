// Package server exposes the operational HTTP endpoints: health and metrics.
package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sjsage522/pricecompare/logger"
)

// Check reports whether a dependency is reachable
type Check func(ctx context.Context) error

// Server serves /health and /metrics
type Server struct {
	http   *http.Server
	checks map[string]Check
}

// New creates a Server listening on addr. Every check is run on /health.
func New(addr string, checks map[string]Check) *Server {
	s := &Server{checks: checks}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	if !logger.IsDebugEnabled() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      "pricecompare",
		"dependencies": deps,
	})
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	logger.Info("Ops server listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
