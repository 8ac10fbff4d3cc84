package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceIDHeader carries the trace identifier across requests
const TraceIDHeader = "X-Trace-ID"

// SpanStatus represents the status of a span
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// Span is one timed operation of a trace
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	Duration  time.Duration     `json:"duration_ns"`
	Tags      map[string]string `json:"tags,omitempty"`
	Status    SpanStatus        `json:"status"`
	Error     string            `json:"error,omitempty"`

	mu sync.Mutex
}

// SetTag sets a tag on the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	s.Tags[key] = value
	s.mu.Unlock()
}

type spanKey struct{}

// Tracer records spans and keeps the most recent finished ones
type Tracer struct {
	serviceName string
	logger      *Logger

	mu     sync.RWMutex
	recent []*Span
	max    int
	active int
}

// NewTracer creates a tracer keeping up to keep finished spans
func NewTracer(serviceName string, logger *Logger, keep int) *Tracer {
	if keep <= 0 {
		keep = 256
	}
	return &Tracer{serviceName: serviceName, logger: logger, max: keep}
}

// StartSpan starts a span as a child of the span in ctx, or a new trace
func (t *Tracer) StartSpan(ctx context.Context, operation string, tags ...string) (*Span, context.Context) {
	span := &Span{
		SpanID:    uuid.NewString()[:8],
		Operation: operation,
		StartTime: time.Now(),
		Tags:      make(map[string]string, len(tags)/2),
		Status:    SpanStatusOK,
	}
	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = uuid.NewString()
	}
	for i := 0; i+1 < len(tags); i += 2 {
		span.Tags[tags[i]] = tags[i+1]
	}

	t.mu.Lock()
	t.active++
	t.mu.Unlock()

	return span, context.WithValue(ctx, spanKey{}, span)
}

// EndSpan finishes a span and records it
func (t *Tracer) EndSpan(span *Span, err error) {
	span.mu.Lock()
	span.Duration = time.Since(span.StartTime)
	if err != nil {
		span.Status = SpanStatusError
		span.Error = err.Error()
	}
	span.mu.Unlock()

	t.mu.Lock()
	t.active--
	t.recent = append(t.recent, span)
	if len(t.recent) > t.max {
		t.recent = t.recent[len(t.recent)-t.max:]
	}
	t.mu.Unlock()

	t.logSpan(span)
}

func (t *Tracer) logSpan(span *Span) {
	if t.logger == nil {
		return
	}
	attrs := []any{
		"service", t.serviceName,
		"trace_id", span.TraceID,
		"span_id", span.SpanID,
		"operation", span.Operation,
		"status", span.Status,
		"duration_ms", span.Duration.Milliseconds(),
	}
	if span.ParentID != "" {
		attrs = append(attrs, "parent_id", span.ParentID)
	}
	if span.Error != "" {
		attrs = append(attrs, "error", span.Error)
	}
	for k, v := range span.Tags {
		attrs = append(attrs, "tag_"+k, v)
	}
	t.logger.Debug("Trace Span", attrs...)
}

// Recent returns the finished spans, oldest first
func (t *Tracer) Recent() []*Span {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Span, len(t.recent))
	copy(out, t.recent)
	return out
}

// Stats summarizes the tracer
func (t *Tracer) Stats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	errors := 0
	for _, s := range t.recent {
		if s.Status == SpanStatusError {
			errors++
		}
	}
	return map[string]any{
		"service":       t.serviceName,
		"active_spans":  t.active,
		"recent_spans":  len(t.recent),
		"recent_errors": errors,
	}
}

// SpanFromContext returns the current span, if any
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// Trace runs fn inside a child span of ctx
func Trace(ctx context.Context, tracer *Tracer, operation string, fn func(context.Context) error, tags ...string) error {
	if tracer == nil {
		return fn(ctx)
	}
	span, ctx := tracer.StartSpan(ctx, operation, tags...)
	err := fn(ctx)
	tracer.EndSpan(span, err)
	return err
}

// TracingMiddleware starts a span per request. An incoming X-Trace-ID is
// kept as the trace identifier.
func TracingMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(c.Request.Context(), fmt.Sprintf("%s %s", c.Request.Method, route),
			"http.method", c.Request.Method,
			"client_ip", c.ClientIP(),
		)
		if incoming := c.GetHeader(TraceIDHeader); incoming != "" && len(incoming) <= 64 {
			span.TraceID = incoming
		}

		c.Header(TraceIDHeader, span.TraceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetTag("http.status_code", fmt.Sprintf("%d", c.Writer.Status()))
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		}
		tracer.EndSpan(span, err)
	}
}
