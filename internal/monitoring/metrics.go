package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds application metrics
type Metrics struct {
	RequestCount        int64
	ErrorCount          int64
	CacheHits           int64
	CacheMisses         int64
	SolverRuns          int64
	SolverFailures      int64
	FilesParsed         int64
	PairsComputed       int64
	RateLimitBlocks     int64
	AverageResponseTime int64 // in nanoseconds
	StartTime           time.Time

	ResponseTimes      []time.Duration
	ResponseTimesMutex sync.RWMutex

	RequestCountByStatus map[int]int64
	StatusMutex          sync.RWMutex

	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pairs           *prometheus.CounterVec
	pairDuration    *prometheus.HistogramVec
	solverRuns      *prometheus.CounterVec
	parsedFiles     prometheus.Counter
}

// NewMetrics creates a new metrics instance with its own prometheus registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		StartTime:            time.Now(),
		ResponseTimes:        make([]time.Duration, 0, 1000),
		RequestCountByStatus: make(map[int]int64),

		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sensim_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensim_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		pairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sensim_pairs_computed_total",
			Help: "Application-experiment pairs computed by operation and mode",
		}, []string{"operation", "mode"}),
		pairDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sensim_matrix_duration_seconds",
			Help:    "Time to compute a full matrix",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"operation"}),
		solverRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sensim_solver_runs_total",
			Help: "External solver runs by outcome",
		}, []string{"outcome"}),
		parsedFiles: factory.NewCounter(prometheus.CounterOpts{
			Name: "sensim_files_parsed_total",
			Help: "Sensitivity data files parsed",
		}),
	}
}

// Registry returns the prometheus registry holding the exported collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementRequest increments the request count
func (m *Metrics) IncrementRequest() {
	atomic.AddInt64(&m.RequestCount, 1)
}

// IncrementError increments the error count
func (m *Metrics) IncrementError() {
	atomic.AddInt64(&m.ErrorCount, 1)
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.CacheHits, 1)
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.CacheMisses, 1)
}

// IncrementRateLimitBlock counts a request rejected by the rate limiter
func (m *Metrics) IncrementRateLimitBlock() {
	atomic.AddInt64(&m.RateLimitBlocks, 1)
}

// RecordFileParsed counts a parsed sensitivity data file
func (m *Metrics) RecordFileParsed() {
	atomic.AddInt64(&m.FilesParsed, 1)
	m.parsedFiles.Inc()
}

// RecordMatrix records a computed matrix of pairs
func (m *Metrics) RecordMatrix(operation, mode string, pairs int, duration time.Duration) {
	atomic.AddInt64(&m.PairsComputed, int64(pairs))
	m.pairs.WithLabelValues(operation, mode).Add(float64(pairs))
	m.pairDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSolverRun records an external solver run
func (m *Metrics) RecordSolverRun(success bool) {
	atomic.AddInt64(&m.SolverRuns, 1)
	outcome := "success"
	if !success {
		atomic.AddInt64(&m.SolverFailures, 1)
		outcome = "failure"
	}
	m.solverRuns.WithLabelValues(outcome).Inc()
}

// RecordResponseTime records response time for averaging and percentiles
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	current := atomic.LoadInt64(&m.AverageResponseTime)
	newAverage := (current + duration.Nanoseconds()) / 2
	atomic.StoreInt64(&m.AverageResponseTime, newAverage)

	// keep the last 1000 samples
	m.ResponseTimesMutex.Lock()
	m.ResponseTimes = append(m.ResponseTimes, duration)
	if len(m.ResponseTimes) > 1000 {
		m.ResponseTimes = m.ResponseTimes[1:]
	}
	m.ResponseTimesMutex.Unlock()
}

// RecordRequest records a finished HTTP request for the route and status
func (m *Metrics) RecordRequest(route string, statusCode int, duration time.Duration) {
	m.StatusMutex.Lock()
	m.RequestCountByStatus[statusCode]++
	m.StatusMutex.Unlock()

	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, statusLabel(statusCode)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	}
	return "2xx"
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.ResponseTimesMutex.RLock()
	defer m.ResponseTimesMutex.RUnlock()

	if len(m.ResponseTimes) == 0 {
		return 0
	}

	times := make([]time.Duration, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)

	sort.Slice(times, func(i, j int) bool {
		return times[i] < times[j]
	})

	index := int(float64(len(times)-1) * percentile / 100.0)
	if index >= len(times) {
		index = len(times) - 1
	}

	return times[index]
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	m.StatusMutex.RLock()
	defer m.StatusMutex.RUnlock()

	distribution := make(map[int]int64, len(m.RequestCountByStatus))
	for code, count := range m.RequestCountByStatus {
		distribution[code] = count
	}
	return distribution
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]any {
	requests := atomic.LoadInt64(&m.RequestCount)
	errors := atomic.LoadInt64(&m.ErrorCount)
	cacheHits := atomic.LoadInt64(&m.CacheHits)
	cacheMisses := atomic.LoadInt64(&m.CacheMisses)

	errorRate := float64(0)
	if requests > 0 {
		errorRate = float64(errors) / float64(requests) * 100
	}

	cacheHitRate := float64(0)
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total) * 100
	}

	return map[string]any{
		"uptime_seconds":         time.Since(m.StartTime).Seconds(),
		"total_requests":         requests,
		"error_count":            errors,
		"error_rate_percent":     errorRate,
		"cache_hits":             cacheHits,
		"cache_misses":           cacheMisses,
		"cache_hit_rate_percent": cacheHitRate,
		"files_parsed":           atomic.LoadInt64(&m.FilesParsed),
		"pairs_computed":         atomic.LoadInt64(&m.PairsComputed),
		"solver_runs":            atomic.LoadInt64(&m.SolverRuns),
		"solver_failures":        atomic.LoadInt64(&m.SolverFailures),
		"rate_limit_blocks":      atomic.LoadInt64(&m.RateLimitBlocks),
		"avg_response_time_ms":   float64(atomic.LoadInt64(&m.AverageResponseTime)) / 1e6,
		"start_time":             m.StartTime.Format(time.RFC3339),

		"p50_response_time_ms":     float64(m.GetPercentileResponseTime(50)) / 1e6,
		"p95_response_time_ms":     float64(m.GetPercentileResponseTime(95)) / 1e6,
		"p99_response_time_ms":     float64(m.GetPercentileResponseTime(99)) / 1e6,
		"status_code_distribution": m.GetStatusCodeDistribution(),
	}
}

// Ensure Metrics implements the cache metrics interface
var _ interface {
	IncrementCacheHit()
	IncrementCacheMiss()
} = (*Metrics)(nil)
