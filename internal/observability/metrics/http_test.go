package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	httpMetrics := newHTTPMetrics(registry, Config{})

	r := gin.New()
	r.Use(GinMiddleware(httpMetrics))
	r.GET("/api/events/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/events/42", nil)
		r.ServeHTTP(w, req)
	}

	got := testutil.ToFloat64(httpMetrics.requests.WithLabelValues("/api/events/:id", http.MethodGet, "204"))
	if got != 3 {
		t.Fatalf("expected 3 requests, got %v", got)
	}
}
