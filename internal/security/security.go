package security

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/sensim/internal/config"
	apperrors "github.com/ZanzyTHEbar/sensim/internal/errors"
	"github.com/ZanzyTHEbar/sensim/internal/monitoring"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxPathLength  int           `json:"max_path_length"`
	MaxPaths       int           `json:"max_paths"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	Burst          int           `json:"burst"`
	AllowedOrigins []string      `json:"allowed_origins"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	LimiterIdle    time.Duration `json:"limiter_idle"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxPathLength:  4096,
		MaxPaths:       256,
		RequestsPerSec: 10,
		Burst:          20,
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Minute,
		MaxBodyBytes:   1 << 20,
		LimiterIdle:    time.Hour,
	}
}

// ConfigFrom derives the security settings from the server configuration.
func ConfigFrom(cfg *config.Config) SecurityConfig {
	sc := DefaultSecurityConfig()
	sc.RequestsPerSec = cfg.Server.RateLimit
	sc.Burst = cfg.Server.RateBurst
	sc.AllowedOrigins = cfg.Server.AllowedOrigins
	sc.RequestTimeout = cfg.GetRequestTimeout()
	if cfg.Server.MaxBodyBytes > 0 {
		sc.MaxBodyBytes = cfg.Server.MaxBodyBytes
	}
	return sc
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SecurityMiddleware provides the request guards of the HTTP surface
type SecurityMiddleware struct {
	config  SecurityConfig
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	mu         sync.Mutex
	ipLimiters map[string]*ipLimiter
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(cfg SecurityConfig, logger *monitoring.Logger, metrics *monitoring.Metrics) *SecurityMiddleware {
	return &SecurityMiddleware{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		ipLimiters: make(map[string]*ipLimiter),
	}
}

// ValidatePaths checks the case file paths of a request before they reach the
// file system.
func (sm *SecurityMiddleware) ValidatePaths(paths []string) error {
	if len(paths) > sm.config.MaxPaths {
		return apperrors.NewValidationError(fmt.Sprintf("too many case files, at most %d are allowed", sm.config.MaxPaths))
	}
	for _, p := range paths {
		if err := sm.validatePath(p); err != nil {
			return err
		}
	}
	return nil
}

func (sm *SecurityMiddleware) validatePath(path string) error {
	switch {
	case strings.TrimSpace(path) == "":
		return apperrors.NewValidationError("file path cannot be empty")
	case len(path) > sm.config.MaxPathLength:
		return apperrors.NewValidationError(fmt.Sprintf("file path exceeds maximum length of %d characters", sm.config.MaxPathLength))
	case strings.Contains(path, "\x00"):
		return apperrors.NewValidationError("file path contains invalid characters")
	case !utf8.ValidString(path):
		return apperrors.NewValidationError("file path contains invalid UTF-8 encoding")
	}
	return nil
}

// RateLimitByIP implements per-IP token bucket rate limiting
func (sm *SecurityMiddleware) RateLimitByIP(c *gin.Context) {
	clientIP := c.ClientIP()

	if !sm.limiter(clientIP).Allow() {
		sm.metrics.IncrementRateLimitBlock()
		sm.logger.SecurityLogger("rate_limit_exceeded", clientIP, c.GetHeader("User-Agent"), map[string]any{
			"path": c.Request.URL.Path,
		})
		c.Header("Retry-After", strconv.Itoa(sm.retryAfter()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded for IP",
			"retry_after": sm.retryAfter(),
		})
		return
	}

	c.Next()
}

func (sm *SecurityMiddleware) limiter(ip string) *rate.Limiter {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	entry, ok := sm.ipLimiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(sm.config.RequestsPerSec), sm.config.Burst)}
		sm.ipLimiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (sm *SecurityMiddleware) retryAfter() int {
	if sm.config.RequestsPerSec >= 1 {
		return 1
	}
	return int(math.Ceil(1 / sm.config.RequestsPerSec))
}

// PruneLimiters drops the limiters of IPs idle for longer than the configured
// idle period and returns how many were removed.
func (sm *SecurityMiddleware) PruneLimiters(now time.Time) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	removed := 0
	for ip, entry := range sm.ipLimiters {
		if now.Sub(entry.lastSeen) > sm.config.LimiterIdle {
			delete(sm.ipLimiters, ip)
			removed++
		}
	}
	return removed
}

// Cleanup prunes idle limiters until ctx is done.
func (sm *SecurityMiddleware) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(sm.config.LimiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := sm.PruneLimiters(now); n > 0 {
				sm.logger.SystemLogger("rate_limiters_pruned", strconv.Itoa(n))
			}
		}
	}
}

// ValidateContentType rejects request bodies that are not JSON
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	if contentType != "" && c.Request.ContentLength != 0 &&
		!strings.Contains(strings.ToLower(contentType), "application/json") {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "unsupported content type",
		})
		return
	}

	c.Next()
}

// LimitBody caps the size of request bodies
func (sm *SecurityMiddleware) LimitBody(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
	}
	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORSConfig returns the CORS middleware for the configured origins
func (sm *SecurityMiddleware) CORSConfig() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     sm.config.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Cache", "X-Timeout"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
