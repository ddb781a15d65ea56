package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"storefront-svc/circuitbreaker"
	"storefront-svc/middleware"
)

// internalError logs err with the request's trace id and answers 500, or
// 503 while a circuit breaker is open.
func internalError(c *gin.Context, logger *zap.Logger, msg string, err error) {
	trace.SpanFromContext(c.Request.Context()).RecordError(err)
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	logger.Error(msg,
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
