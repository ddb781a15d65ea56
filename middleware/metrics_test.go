package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func setupMetricsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/metrics-test/plain", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/metrics-test/stream", func(c *gin.Context) {
		c.SSEvent("stats", gin.H{"total_orders": 1})
	})
	return router
}

func TestMetricsMiddleware_StreamsSkipDuration(t *testing.T) {
	router := setupMetricsRouter()
	series := testutil.CollectAndCount(httpRequestDuration)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics-test/stream", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/metrics-test/stream", "200")); got != 1 {
		t.Errorf("Expected stream request to be counted once, got %v", got)
	}
	if got := testutil.CollectAndCount(httpRequestDuration); got != series {
		t.Errorf("Expected no duration series for the stream, got %d (was %d)", got, series)
	}

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/metrics-test/plain", nil))

	if got := testutil.CollectAndCount(httpRequestDuration); got != series+1 {
		t.Errorf("Expected a duration series for the plain request, got %d (was %d)", got, series)
	}
}
