package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"quorum/internal/engine"
	"quorum/internal/logger"
	"quorum/internal/pkg/circuit"
	"quorum/internal/shadow"
	"quorum/internal/store"

	"github.com/gin-gonic/gin"
)

// Pipeline is the slice of the decision engine the API needs.
type Pipeline interface {
	RunDecisionCycle(ctx context.Context, instrument string) (*engine.CycleResult, error)
	ShadowReport(ctx context.Context, period time.Duration) (*shadow.Report, error)
}

// Server exposes the decision pipeline over HTTP: manual cycles, the decision
// log, shadow reports and breaker control.
type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr     string
	Pipeline Pipeline
	Store    store.Store
	Breaker  *circuit.Breaker
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil || cfg.Store == nil || cfg.Breaker == nil {
		return nil, errors.New("http server requires pipeline, store and breaker")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{pipeline: cfg.Pipeline, store: cfg.Store, breaker: cfg.Breaker}
	api := router.Group("/api")
	api.POST("/decide", h.handleDecide)
	api.GET("/decisions", h.handleDecisions)
	api.GET("/shadow/report", h.handleShadowReport)
	api.GET("/shadow/report.html", h.handleShadowReportHTML)
	api.GET("/shadow/report.png", h.handleShadowReportPNG)
	api.GET("/breaker", h.handleBreakerStatus)
	api.POST("/breaker/reset", h.handleBreakerReset)

	return &Server{addr: cfg.Addr, router: router}, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
