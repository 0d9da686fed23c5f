package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/huangang/erpsettings/internal/metrics"
)

// Metrics serves the Prometheus registry
// GET /metrics
func Metrics() gin.HandlerFunc {
	return gin.WrapH(metrics.Handler())
}
