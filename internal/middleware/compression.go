package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ExcludedPrefixes []string // Paths served uncompressed
}

// DefaultCompressionConfig returns the default compression configuration.
// The prometheus endpoint negotiates its own encoding.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		CompressionLevel: gzip.DefaultCompression,
		ExcludedPrefixes: []string{"/metrics/prometheus", "/swagger/"},
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses
type CompressionMiddleware struct {
	config CompressionConfig
	stats  compressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	cm := &CompressionMiddleware{config: config}
	cm.pool.New = func() any {
		gz, err := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		if err != nil {
			gz = gzip.NewWriter(io.Discard)
		}
		return gz
	}
	return cm
}

// Handler returns a Gin middleware that compresses responses for clients
// accepting gzip
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.shouldCompress(c) {
			c.Next()
			return
		}

		gz := cm.pool.Get().(*gzip.Writer)
		counter := &countingWriter{w: c.Writer}
		gz.Reset(counter)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		writer := &gzipResponseWriter{ResponseWriter: c.Writer, gzipWriter: gz}
		c.Writer = writer

		defer func() {
			if writer.original == 0 {
				// nothing was written: drop the gzip trailer
				gz.Reset(io.Discard)
			}
			gz.Close()
			cm.pool.Put(gz)
			cm.stats.record(writer.original, counter.n)
		}()

		c.Next()
	}
}

func (cm *CompressionMiddleware) shouldCompress(c *gin.Context) bool {
	if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		return false
	}
	path := c.Request.URL.Path
	for _, prefix := range cm.config.ExcludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// gzipResponseWriter writes the response body through a gzip writer
type gzipResponseWriter struct {
	gin.ResponseWriter
	gzipWriter *gzip.Writer
	original   int64
}

func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.Header().Del("Content-Length")
	gzw.original += int64(len(data))
	return gzw.gzipWriter.Write(data)
}

func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

func (gzw *gzipResponseWriter) WriteHeader(statusCode int) {
	gzw.Header().Del("Content-Length")
	gzw.ResponseWriter.WriteHeader(statusCode)
}

// Flush flushes the gzip writer
func (gzw *gzipResponseWriter) Flush() {
	gzw.gzipWriter.Flush()
	gzw.ResponseWriter.Flush()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// compressionStats counts requests that went through the gzip writer
type compressionStats struct {
	requests, compressed atomic.Int64
	inBytes, outBytes    atomic.Int64
}

func (cs *compressionStats) record(in, out int64) {
	cs.requests.Add(1)
	cs.inBytes.Add(in)
	if in > 0 {
		cs.compressed.Add(1)
		cs.outBytes.Add(out)
	}
}

// GetStats reports how much response data gzip saved
func (cm *CompressionMiddleware) GetStats() map[string]any {
	in, out := cm.stats.inBytes.Load(), cm.stats.outBytes.Load()
	ratio := 0.0
	if in > 0 {
		ratio = float64(out) / float64(in)
	}
	return map[string]any{
		"total_requests":      cm.stats.requests.Load(),
		"compressed_requests": cm.stats.compressed.Load(),
		"total_bytes":         in,
		"compressed_bytes":    out,
		"bytes_saved":         in - out,
		"compression_ratio":   ratio,
	}
}
