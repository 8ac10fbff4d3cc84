// Package server exposes the similarity engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/sensim/docs"
	"github.com/ZanzyTHEbar/sensim/internal/analysis"
	"github.com/ZanzyTHEbar/sensim/internal/cache"
	"github.com/ZanzyTHEbar/sensim/internal/config"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/middleware"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
	"github.com/ZanzyTHEbar/sensim/internal/security"
	"github.com/ZanzyTHEbar/sensim/internal/solver"
)

const (
	shutdownTimeout = 30 * time.Second
	memoryInterval  = 15 * time.Second
	alertInterval   = 30 * time.Second
	gcThreshold     = 1 << 30
	keptSpans       = 512
)

// Server wires the analyzer, the solver runner and the request guards into a
// gin router.
type Server struct {
	cfg      *config.Config
	version  string
	logger   *monitoring.Logger
	metrics  *monitoring.Metrics
	analyzer *analysis.Analyzer
	runner   *solver.Runner
	guard    *security.SecurityMiddleware
	cache    *cache.Cache
	gzip     *middleware.CompressionMiddleware
	tracer   *monitoring.Tracer
	memory   *monitoring.MemoryMonitor
	alerts   *monitoring.AlertManager
	router   *gin.Engine
}

// New builds a server and its routes.
func New(cfg *config.Config, logger *monitoring.Logger, metrics *monitoring.Metrics, version string) *Server {
	s := &Server{
		cfg:      cfg,
		version:  version,
		logger:   logger,
		metrics:  metrics,
		analyzer: analysis.NewAnalyzer(cfg, logger, metrics),
		runner:   solver.NewRunner(cfg, logger, metrics),
		guard:    security.NewSecurityMiddleware(security.ConfigFrom(cfg), logger, metrics),
		cache:    cache.NewCache(cfg.GetCacheTTL()),
		gzip:     middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		tracer:   monitoring.NewTracer("sensim", logger, keptSpans),
		memory:   monitoring.NewMemoryMonitor(memoryInterval, gcThreshold, logger),
	}
	s.alerts = monitoring.NewAlertManager(metrics, s.memory, logger, alertInterval)
	s.alerts.AddNotifier(monitoring.NewLogNotifier(logger))
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()

	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.TracingMiddleware(s.tracer))
	r.Use(security.SecurityHeadersMiddleware("/swagger/", true))
	r.Use(s.guard.CORSConfig())
	r.Use(s.guard.RequestTimeout)
	r.Use(s.guard.ValidateContentType)
	r.Use(s.guard.LimitBody)
	r.Use(s.guard.RateLimitByIP)
	r.Use(s.gzip.Handler())
	r.Use(s.cache.Middleware(s.metrics, s.logger, "/similarity", "/contributions", "/compare"))
	r.Use(apperrors.ErrorHandler())

	r.GET("/health", monitoring.HealthHandler(s.metrics, s.version))

	r.POST("/similarity", s.handleSimilarity)
	r.POST("/contributions", s.handleContributions)
	r.POST("/compare", s.handleCompare)
	r.POST("/uncertainty/contributions", s.handleUncertainty)

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/metrics", func(c *gin.Context) {
		stats := s.metrics.GetStats()
		stats["compression"] = s.gzip.GetStats()
		stats["memory"] = s.memory.GetStats()
		stats["tracing"] = s.tracer.Stats()
		if b := s.runner.Breaker(); b != nil {
			stats["solver_breaker"] = b.Stats()
		}
		c.JSON(http.StatusOK, stats)
	})
	r.GET("/metrics/prometheus", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))

	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.cache.Stats())
	})
	if s.cfg.Server.Profiling {
		s.logger.Info("Enabling performance profiling endpoints")
		r.GET("/debug/pprof/*name", profileHandler)
	}

	r.GET("/traces", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"spans": s.tracer.Recent()})
	})
	r.GET("/alerts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"active": s.alerts.GetActiveAlerts(),
			"all":    s.alerts.GetAlerts(),
		})
	})

	return r
}

func profileHandler(c *gin.Context) {
	switch strings.TrimPrefix(c.Param("name"), "/") {
	case "cmdline":
		pprof.Cmdline(c.Writer, c.Request)
	case "profile":
		pprof.Profile(c.Writer, c.Request)
	case "symbol":
		pprof.Symbol(c.Writer, c.Request)
	case "trace":
		pprof.Trace(c.Writer, c.Request)
	default:
		pprof.Index(c.Writer, c.Request)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	go s.guard.Cleanup(bgCtx)
	go s.memory.Start(bgCtx)
	go s.alerts.Start(bgCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", "port", s.cfg.Server.Port, "version", s.version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return apperrors.NewConfigurationError("server failed to start", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return apperrors.WrapError(err, "server forced to shutdown")
	}
	s.logger.Info("Server exited")
	return nil
}

// Close releases background resources.
func (s *Server) Close() {
	s.cache.Close()
}
