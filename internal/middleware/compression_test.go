package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cm := NewCompressionMiddleware(DefaultCompressionConfig())
	payload := strings.Repeat(`{"value":0.86,"sigma":0.001}`, 64)

	r := gin.New()
	r.Use(cm.Handler())
	r.GET("/similarity", func(c *gin.Context) { c.String(http.StatusOK, payload) })
	r.GET("/metrics/prometheus", func(c *gin.Context) { c.String(http.StatusOK, payload) })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name       string
		path       string
		accept     string
		compressed bool
	}{
		{name: "gzip accepted", path: "/similarity", accept: "gzip, deflate", compressed: true},
		{name: "no accept-encoding", path: "/similarity"},
		{name: "excluded prefix", path: "/metrics/prometheus", accept: "gzip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", tt.path, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Encoding", tt.accept)
			}
			r.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)

			if !tt.compressed {
				assert.Empty(t, w.Header().Get("Content-Encoding"))
				assert.Equal(t, payload, w.Body.String())
				return
			}

			assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
			assert.Less(t, w.Body.Len(), len(payload))
			zr, err := gzip.NewReader(w.Body)
			require.NoError(t, err)
			body, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, payload, string(body))
		})
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/empty", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Zero(t, w.Body.Len())

	stats := cm.GetStats()
	assert.EqualValues(t, 2, stats["total_requests"])
	assert.EqualValues(t, 1, stats["compressed_requests"])
	assert.EqualValues(t, len(payload), stats["total_bytes"])
}
