// Package httpserver exposes the light over HTTP.
package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaz8081/govee-light/internal/config"
)

// Options wires optional endpoints into the server.
type Options struct {
	MetricsPath    string       // defaults to /metrics
	MetricsHandler http.Handler // nil disables the metrics route
	Ready          func() bool  // nil is always ready
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	srv *http.Server
}

// New creates the gin engine, registers the light, health and metrics
// routes, and configures the listener from cfg.
func New(cfg config.HTTPConfig, light *LightHandler, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(logger))

	r.GET("/light/:hex", light.SetColor)
	r.GET("/power/:state", light.SetPower)
	r.GET("/brightness/:level", light.SetBrightness)

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if opts.Ready == nil || opts.Ready() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})

	if opts.MetricsHandler != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(opts.MetricsHandler))
	}

	return &Server{srv: &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start listens and serves. It blocks and returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
