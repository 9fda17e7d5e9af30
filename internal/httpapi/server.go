// Package httpapi serves cached artifacts and the operational endpoints of
// the gateway.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-gateway/internal/cache"
	"github.com/book-expert/tts-gateway/internal/pricing"
	"github.com/book-expert/tts-gateway/internal/usage"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	artifactCacheControl = "public, max-age=3600"
	healthCheckTimeout   = 5 * time.Second
	readHeaderTimeout    = 10 * time.Second
	shutdownTimeout      = 15 * time.Second
	corsMaxAge           = 12 * time.Hour
)

// Health states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Static errors.
var (
	ErrListenAddrEmpty = errors.New("listen address cannot be empty")
	ErrStoreNil        = errors.New("cache store cannot be nil")
	ErrUsageNil        = errors.New("usage tracker cannot be nil")
)

// HealthChecker checks that the remote provider is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options configures the server. Provider is nil when the provider is
// disabled. Gatherer defaults to prometheus.DefaultGatherer.
type Options struct {
	ListenAddr string
	Store      *cache.Store
	Usage      usage.Tracker
	Provider   HealthChecker
	Gatherer   prometheus.Gatherer
}

// ProviderHealth is the provider section of a health report.
type ProviderHealth struct {
	Enabled bool   `json:"enabled"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HealthReport is the body of GET /health.
type HealthReport struct {
	Status   string         `json:"status"`
	Provider ProviderHealth `json:"provider"`
	Cache    *cache.Stats   `json:"cache,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Server owns the gin engine and its http.Server.
type Server struct {
	engine     *gin.Engine
	listenAddr string
	store      *cache.Store
	usage      usage.Tracker
	provider   HealthChecker
	log        *logger.Logger
}

// NewServer builds the router.
func NewServer(opts Options, log *logger.Logger) (*Server, error) {
	if opts.ListenAddr == "" {
		return nil, ErrListenAddrEmpty
	}

	if opts.Store == nil {
		return nil, ErrStoreNil
	}

	if opts.Usage == nil {
		return nil, ErrUsageNil
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	server := &Server{
		engine:     gin.New(),
		listenAddr: opts.ListenAddr,
		store:      opts.Store,
		usage:      opts.Usage,
		provider:   opts.Provider,
		log:        log,
	}

	server.engine.Use(gin.Recovery())
	server.engine.Use(loggingMiddleware(log))
	server.engine.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Range"},
		ExposeHeaders: []string{"Content-Length", "Content-Range"},
		MaxAge:        corsMaxAge,
	}))

	artifacts := static.LocalFile(opts.Store.Dir(), false)
	server.engine.Use(artifactHeaders(artifacts))
	server.engine.Use(static.Serve(cache.PublicPath, artifacts))

	server.engine.GET("/health", server.health)
	server.engine.GET("/pricing", server.pricing)
	server.engine.GET("/usage/:subject", server.usageSummary)
	server.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return server, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		s.log.Info("HTTP server listening on %s", s.listenAddr)

		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	s.log.Info("HTTP server stopped")

	return nil
}

func (s *Server) health(c *gin.Context) {
	report := HealthReport{Status: StatusOK, Provider: ProviderHealth{Enabled: s.provider != nil}}

	if s.provider != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		err := s.provider.HealthCheck(ctx)
		if err != nil {
			report.Status = StatusDegraded
			report.Provider.Error = err.Error()
		} else {
			report.Provider.Healthy = true
		}
	}

	stats, err := s.store.Stats()
	if err != nil {
		s.log.Error("Failed to read cache statistics: %v", err)
		report.Status = StatusDegraded
		report.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, report)

		return
	}

	report.Cache = &stats
	c.JSON(http.StatusOK, report)
}

func (s *Server) pricing(c *gin.Context) {
	c.JSON(http.StatusOK, pricing.GetInfo())
}

func (s *Server) usageSummary(c *gin.Context) {
	period, err := usage.ParsePeriod(c.Query("period"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	c.JSON(http.StatusOK, s.usage.Query(c.Param("subject"), period))
}

// artifactHeaders marks served artifacts cacheable and hides in-progress
// temp files, which the store names with a leading dot.
func artifactHeaders(artifacts static.ServeFileSystem) gin.HandlerFunc {
	return func(c *gin.Context) {
		urlPath := c.Request.URL.Path
		if !strings.HasPrefix(urlPath, cache.PublicPath+"/") {
			c.Next()

			return
		}

		if strings.HasPrefix(path.Base(urlPath), ".") {
			c.AbortWithStatus(http.StatusNotFound)

			return
		}

		if artifacts.Exists(cache.PublicPath, urlPath) {
			c.Header("Cache-Control", artifactCacheControl)
		}

		c.Next()
	}
}

func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.Info("[HTTP] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
