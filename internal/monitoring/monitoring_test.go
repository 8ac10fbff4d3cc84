package monitoring

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *Logger {
	return NewLoggerWithWriters(io.Discard, io.Discard, slog.LevelDebug)
}

func TestLoggerFanout(t *testing.T) {
	var text, json bytes.Buffer
	l := NewLoggerWithWriters(&text, &json, slog.LevelInfo)

	l.ParseLogger("/cases/a.sdf", 44, 12, []string{"u-235 fission"}, 3*time.Millisecond)
	l.Debug("hidden")

	assert.Contains(t, text.String(), "a.sdf")
	assert.Contains(t, json.String(), `"profiles":12`)
	assert.NotContains(t, text.String(), "hidden")
	assert.NoError(t, l.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncrementRequest()
	m.IncrementRequest()
	m.IncrementError()
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.RecordMatrix("similarity", "correlated", 6, 10*time.Millisecond)
	m.RecordSolverRun(true)
	m.RecordSolverRun(false)
	m.RecordRequest("/similarity", http.StatusOK, time.Millisecond)
	m.RecordRequest("", http.StatusNotFound, time.Millisecond)

	stats := m.GetStats()
	assert.EqualValues(t, 2, stats["total_requests"])
	assert.InDelta(t, 50, stats["error_rate_percent"], 1e-9)
	assert.InDelta(t, 50, stats["cache_hit_rate_percent"], 1e-9)
	assert.EqualValues(t, 6, stats["pairs_computed"])
	assert.EqualValues(t, 1, stats["solver_failures"])

	assert.InDelta(t, 6, testutil.ToFloat64(m.pairs.WithLabelValues("similarity", "correlated")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.solverRuns.WithLabelValues("failure")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "4xx")), 1e-9)
}

func TestPercentileResponseTime(t *testing.T) {
	m := NewMetrics()
	assert.Zero(t, m.GetPercentileResponseTime(95))
	for i := 1; i <= 100; i++ {
		m.RecordResponseTime(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 95*time.Millisecond, m.GetPercentileResponseTime(95))
}

func TestTracer(t *testing.T) {
	tracer := NewTracer("sensim", discardLogger(), 2)

	var inner *Span
	err := Trace(context.Background(), tracer, "outer", func(ctx context.Context) error {
		outer := SpanFromContext(ctx)
		require.NotNil(t, outer)
		return Trace(ctx, tracer, "inner", func(ctx context.Context) error {
			inner = SpanFromContext(ctx)
			assert.Equal(t, outer.TraceID, inner.TraceID)
			assert.Equal(t, outer.SpanID, inner.ParentID)
			return errors.New("boom")
		}, "mode", "manual")
	})
	require.EqualError(t, err, "boom")

	spans := tracer.Recent()
	require.Len(t, spans, 2)
	assert.Equal(t, "inner", spans[0].Operation)
	assert.Equal(t, SpanStatusError, spans[0].Status)
	assert.Equal(t, "manual", spans[0].Tags["mode"])
	assert.Equal(t, "outer", spans[1].Operation)

	require.NoError(t, Trace(context.Background(), tracer, "third", func(context.Context) error { return nil }))
	spans = tracer.Recent()
	require.Len(t, spans, 2)
	assert.Equal(t, "outer", spans[0].Operation)

	stats := tracer.Stats()
	assert.Equal(t, 0, stats["active_spans"])
	assert.Equal(t, 1, stats["recent_errors"])

	assert.NoError(t, Trace(context.Background(), nil, "untraced", func(context.Context) error { return nil }))
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := NewTracer("sensim", discardLogger(), 8)

	r := gin.New()
	r.Use(TracingMiddleware(tracer))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) {
		c.Error(errors.New("bad input"))
		c.Status(http.StatusBadRequest)
	})

	tests := []struct {
		name     string
		path     string
		incoming string
		status   SpanStatus
	}{
		{name: "new trace", path: "/ok", status: SpanStatusOK},
		{name: "propagated trace", path: "/ok", incoming: "trace-123", status: SpanStatusOK},
		{name: "handler error", path: "/fail", status: SpanStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", tt.path, nil)
			if tt.incoming != "" {
				req.Header.Set(TraceIDHeader, tt.incoming)
			}
			r.ServeHTTP(w, req)

			id := w.Header().Get(TraceIDHeader)
			require.NotEmpty(t, id)
			if tt.incoming != "" {
				assert.Equal(t, tt.incoming, id)
			}

			spans := tracer.Recent()
			last := spans[len(spans)-1]
			assert.Equal(t, id, last.TraceID)
			assert.Equal(t, "GET "+tt.path, last.Operation)
			assert.Equal(t, tt.status, last.Status)
		})
	}
}

func TestMemoryMonitor(t *testing.T) {
	mm := NewMemoryMonitor(10*time.Millisecond, 1, discardLogger())

	first := mm.Sample()
	assert.NotZero(t, first.HeapAlloc)
	assert.Greater(t, mm.HeapAllocMB(), 0.0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mm.Start(ctx)
		close(done)
	}()
	assert.Eventually(t, func() bool { return len(mm.GetHistory()) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	stats := mm.GetStats()
	assert.GreaterOrEqual(t, stats["forced_gcs"], 3)
	assert.GreaterOrEqual(t, stats["history_count"], 3)
}

type recordingNotifier struct {
	fired, resolved []string
}

func (n *recordingNotifier) SendAlert(_ context.Context, a Alert) error {
	n.fired = append(n.fired, a.Name)
	return nil
}

func (n *recordingNotifier) ResolveAlert(_ context.Context, a Alert) error {
	n.resolved = append(n.resolved, a.Name)
	return errors.New("resolve hook unavailable")
}

func TestAlertManager(t *testing.T) {
	m := NewMetrics()
	rule := AlertRule{
		Name:      "SolverFailures",
		Query:     QuerySolverFailureRate,
		Threshold: 50,
		Operator:  "gte",
		Severity:  SeverityCritical,
		For:       time.Minute,
	}
	var logs bytes.Buffer
	am := NewAlertManager(m, nil, NewLoggerWithWriters(&logs, io.Discard, slog.LevelDebug), time.Second,
		rule, AlertRule{Name: "Bogus", Query: "cpu_usage"})
	n := &recordingNotifier{}
	am.AddNotifier(n)

	ctx := context.Background()
	start := time.Now()

	am.Evaluate(ctx, start)
	assert.Empty(t, am.GetAlerts())

	m.RecordSolverRun(false)
	am.Evaluate(ctx, start.Add(time.Second))
	active := am.GetActiveAlerts()
	require.Len(t, active, 1)
	assert.InDelta(t, 100, active[0].Value, 1e-9)
	assert.Equal(t, []string{"SolverFailures"}, n.fired)

	// still firing, no second notification
	am.Evaluate(ctx, start.Add(2*time.Second))
	assert.Len(t, n.fired, 1)

	m.RecordSolverRun(true)
	m.RecordSolverRun(true)
	am.Evaluate(ctx, start.Add(30*time.Second))
	assert.Len(t, am.GetActiveAlerts(), 1, "held for the rule's minimum duration")

	am.Evaluate(ctx, start.Add(2*time.Minute))
	assert.Empty(t, am.GetActiveAlerts())
	all := am.GetAlerts()
	require.Len(t, all, 1)
	assert.Equal(t, StatusResolved, all[0].Status)
	require.NotNil(t, all[0].ResolvedAt)
	assert.Equal(t, []string{"SolverFailures"}, n.resolved)

	assert.True(t, strings.Contains(logs.String(), "unknown_alert_query"))
	assert.True(t, strings.Contains(logs.String(), "alert_notification_failed"))
}

func TestDefaultAlertRulesHaveKnownQueries(t *testing.T) {
	am := NewAlertManager(NewMetrics(), NewMemoryMonitor(time.Second, 0, discardLogger()), discardLogger(), time.Second)
	for _, rule := range DefaultAlertRules {
		_, ok := am.query(rule.Query)
		assert.True(t, ok, rule.Name)
	}
}

func TestMonitoringMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(MonitoringMiddleware(m, discardLogger()))
	r.GET("/health", HealthHandler(m, "v1"))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/health", "/boom", "/missing"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
	}

	assert.EqualValues(t, 3, m.RequestCount)
	assert.EqualValues(t, 2, m.ErrorCount)
	dist := m.GetStatusCodeDistribution()
	assert.EqualValues(t, 1, dist[http.StatusOK])
	assert.EqualValues(t, 1, dist[http.StatusBadGateway])
	assert.EqualValues(t, 1, dist[http.StatusNotFound])
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("/health", "2xx")), 1e-9)
}
