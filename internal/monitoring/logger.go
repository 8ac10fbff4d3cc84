package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"github.com/ZanzyTHEbar/sensim/internal/config"
)

// Logger provides enhanced structured logging with context
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// ParseLevel maps a configured level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Add timestamp in RFC3339 format
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	}
}

// NewLogger creates a logger writing text to stderr and, when a log file is
// configured, JSON to that file as well.
func NewLogger(cfg config.LoggingConfig) *Logger {
	level := ParseLevel(cfg.Level)
	stderr := slog.NewTextHandler(os.Stderr, handlerOptions(level))
	if cfg.File == "" {
		return &Logger{Logger: slog.New(stderr)}
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l := &Logger{Logger: slog.New(stderr)}
		l.Error("failed to open log file, using stderr only", "error", err, "file", cfg.File)
		return l
	}

	json := slog.NewJSONHandler(file, handlerOptions(level))
	return &Logger{Logger: slog.New(slogmulti.Fanout(stderr, json)), closer: file}
}

// NewLoggerWithWriters creates a fan-out logger over custom writers (for testing).
func NewLoggerWithWriters(text, json io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slogmulti.Fanout(
		slog.NewTextHandler(text, handlerOptions(level)),
		slog.NewJSONHandler(json, handlerOptions(level)),
	))}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"user_agent", userAgent,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// AnalysisLogger logs a completed similarity or contribution computation
func (l *Logger) AnalysisLogger(operation, mode string, applications, experiments int, duration time.Duration, cacheHit bool) {
	l.Info("Analysis Completed",
		"operation", operation,
		"mode", mode,
		"applications", applications,
		"experiments", experiments,
		"pairs", applications*experiments,
		"duration_ms", duration.Milliseconds(),
		"cache_hit", cacheHit,
	)
}

// ParseLogger logs a parsed sensitivity data file
func (l *Logger) ParseLogger(path string, groups, profiles int, duplicates []string, duration time.Duration) {
	level := slog.LevelDebug
	if len(duplicates) > 0 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "Sensitivity File Parsed",
		"path", path,
		"groups", groups,
		"profiles", profiles,
		"duplicates", duplicates,
		"duration_ms", duration.Milliseconds(),
	)
}

// SolverLogger logs an external solver run
func (l *Logger) SolverLogger(binary, input string, cases int, duration time.Duration, err error) {
	level := slog.LevelInfo
	attrs := []any{
		"binary", binary,
		"input", input,
		"cases", cases,
		"duration_ms", duration.Milliseconds(),
		"success", err == nil,
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", err.Error())
	}
	l.Log(context.Background(), level, "Solver Run", attrs...)
}

// APIErrorLogger logs API errors with context
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	// Get caller information for better debugging
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		caller = file + ":" + strconv.Itoa(line)
	}

	l.Error("API Error",
		"error", err.Error(),
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"caller", caller,
	)
}

// CacheLogger logs cache operations
func (l *Logger) CacheLogger(operation, key string, hit bool, itemCount int) {
	if len(key) > 8 {
		key = key[:8] + "..."
	}
	l.Debug("Cache Operation",
		"operation", operation,
		"key_hash", key,
		"hit", hit,
		"cache_size", itemCount,
	)
}

// SecurityLogger logs security-related events
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]any) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}
	l.Warn("Security Event", attrs...)
}

// SystemLogger logs system-level events
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}

var startTime = time.Now()
