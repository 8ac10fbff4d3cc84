package monitoring

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive   AlertStatus = "active"
	StatusResolved AlertStatus = "resolved"
)

// Queries understood by alert rules
const (
	QueryErrorRate         = "error_rate_percent"
	QueryP95ResponseTime   = "p95_response_time_ms"
	QuerySolverFailureRate = "solver_failure_rate_percent"
	QueryHeapAlloc         = "heap_alloc_mb"
)

// Alert represents a monitoring alert
type Alert struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Severity    AlertSeverity `json:"severity"`
	Status      AlertStatus   `json:"status"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	FiredAt     time.Time     `json:"fired_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
}

// AlertRule fires when Query compares with Threshold by Operator
type AlertRule struct {
	Name        string
	Query       string
	Threshold   float64
	Operator    string // gt, gte, lt, lte
	Severity    AlertSeverity
	Description string
	// For is the minimum time an alert stays active before it can resolve
	For time.Duration
}

// AlertNotifier receives alert transitions
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert Alert) error
	ResolveAlert(ctx context.Context, alert Alert) error
}

// LogNotifier writes alert transitions to the logger
type LogNotifier struct {
	logger *Logger
}

// NewLogNotifier creates a notifier writing to logger
func NewLogNotifier(logger *Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendAlert(_ context.Context, alert Alert) error {
	n.logger.Warn("Alert fired", "alert", alert.Name, "severity", alert.Severity, "value", alert.Value, "threshold", alert.Threshold)
	return nil
}

func (n *LogNotifier) ResolveAlert(_ context.Context, alert Alert) error {
	n.logger.Info("Alert resolved", "alert", alert.Name, "value", alert.Value)
	return nil
}

// DefaultAlertRules watch request errors, latency, solver failures and heap size
var DefaultAlertRules = []AlertRule{
	{
		Name:        "HighErrorRate",
		Query:       QueryErrorRate,
		Threshold:   10,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Description: "More than 10% of requests failed",
		For:         5 * time.Minute,
	},
	{
		Name:        "SlowAnalysis",
		Query:       QueryP95ResponseTime,
		Threshold:   60_000,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Description: "95th percentile response time is above one minute",
		For:         2 * time.Minute,
	},
	{
		Name:        "SolverFailures",
		Query:       QuerySolverFailureRate,
		Threshold:   50,
		Operator:    "gte",
		Severity:    SeverityCritical,
		Description: "Half or more of the solver runs failed",
		For:         time.Minute,
	},
	{
		Name:        "HighHeapUsage",
		Query:       QueryHeapAlloc,
		Threshold:   2048,
		Operator:    "gt",
		Severity:    SeverityWarning,
		Description: "Heap in use is above 2 GiB",
		For:         time.Minute,
	},
}

// AlertManager evaluates rules against the service metrics
type AlertManager struct {
	metrics   *Metrics
	memory    *MemoryMonitor
	logger    *Logger
	interval  time.Duration
	rules     []AlertRule
	notifiers []AlertNotifier

	mu     sync.RWMutex
	alerts map[string]*Alert
}

// NewAlertManager creates an alert manager. memory may be nil.
func NewAlertManager(metrics *Metrics, memory *MemoryMonitor, logger *Logger, interval time.Duration, rules ...AlertRule) *AlertManager {
	if len(rules) == 0 {
		rules = DefaultAlertRules
	}
	return &AlertManager{
		metrics:  metrics,
		memory:   memory,
		logger:   logger,
		interval: interval,
		rules:    rules,
		alerts:   make(map[string]*Alert),
	}
}

// AddNotifier adds a notifier
func (am *AlertManager) AddNotifier(notifier AlertNotifier) {
	am.notifiers = append(am.notifiers, notifier)
}

// Start evaluates the rules every interval until ctx is cancelled
func (am *AlertManager) Start(ctx context.Context) {
	ticker := time.NewTicker(am.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			am.Evaluate(ctx, now)
		}
	}
}

// Evaluate checks every rule once
func (am *AlertManager) Evaluate(ctx context.Context, now time.Time) {
	for _, rule := range am.rules {
		value, ok := am.query(rule.Query)
		if !ok {
			am.logger.SystemLogger("unknown_alert_query", fmt.Sprintf("Unknown query type: %s", rule.Query))
			continue
		}
		am.evaluateRule(ctx, rule, value, now)
	}
}

func (am *AlertManager) evaluateRule(ctx context.Context, rule AlertRule, value float64, now time.Time) {
	am.mu.Lock()
	alert, exists := am.alerts[rule.Name]
	firing := checkCondition(value, rule.Operator, rule.Threshold)

	var fired, resolved bool
	switch {
	case firing && (!exists || alert.Status != StatusActive):
		alert = &Alert{
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Status:      StatusActive,
			Threshold:   rule.Threshold,
			FiredAt:     now,
		}
		am.alerts[rule.Name] = alert
		fired = true
	case !firing && exists && alert.Status == StatusActive && now.Sub(alert.FiredAt) >= rule.For:
		alert.Status = StatusResolved
		at := now
		alert.ResolvedAt = &at
		resolved = true
	}
	var snapshot Alert
	if exists || fired {
		alert.Value = value
		snapshot = *alert
	}
	am.mu.Unlock()

	switch {
	case fired:
		am.logger.SystemLogger("alert_fired", fmt.Sprintf("Alert %s fired with severity %s", rule.Name, rule.Severity))
		am.notify(ctx, snapshot, AlertNotifier.SendAlert)
	case resolved:
		am.logger.SystemLogger("alert_resolved", fmt.Sprintf("Alert %s resolved", rule.Name))
		am.notify(ctx, snapshot, AlertNotifier.ResolveAlert)
	}
}

func (am *AlertManager) notify(ctx context.Context, alert Alert, send func(AlertNotifier, context.Context, Alert) error) {
	for _, n := range am.notifiers {
		if err := send(n, ctx, alert); err != nil {
			am.logger.SystemLogger("alert_notification_failed", fmt.Sprintf("Failed to notify alert %s: %v", alert.Name, err))
		}
	}
}

func (am *AlertManager) query(q string) (float64, bool) {
	switch q {
	case QueryErrorRate:
		requests := atomic.LoadInt64(&am.metrics.RequestCount)
		if requests == 0 {
			return 0, true
		}
		return float64(atomic.LoadInt64(&am.metrics.ErrorCount)) / float64(requests) * 100, true
	case QueryP95ResponseTime:
		return float64(am.metrics.GetPercentileResponseTime(95)) / 1e6, true
	case QuerySolverFailureRate:
		runs := atomic.LoadInt64(&am.metrics.SolverRuns)
		if runs == 0 {
			return 0, true
		}
		return float64(atomic.LoadInt64(&am.metrics.SolverFailures)) / float64(runs) * 100, true
	case QueryHeapAlloc:
		if am.memory == nil {
			return 0, true
		}
		return am.memory.HeapAllocMB(), true
	}
	return 0, false
}

func checkCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case "gt":
		return value > threshold
	case "gte":
		return value >= threshold
	case "lt":
		return value < threshold
	case "lte":
		return value <= threshold
	}
	return false
}

// GetAlerts returns every alert seen, sorted by name
func (am *AlertManager) GetAlerts() []Alert {
	return am.list(func(*Alert) bool { return true })
}

// GetActiveAlerts returns the firing alerts, sorted by name
func (am *AlertManager) GetActiveAlerts() []Alert {
	return am.list(func(a *Alert) bool { return a.Status == StatusActive })
}

func (am *AlertManager) list(keep func(*Alert) bool) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()
	out := make([]Alert, 0, len(am.alerts))
	for _, a := range am.alerts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
