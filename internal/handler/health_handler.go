package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// OutboxStats reports outbox message counts by status.
type OutboxStats interface {
	GetStats(ctx context.Context) (map[string]int, error)
}

// Handles GET /admin/outbox/stats
func OutboxStatsHandler(stats OutboxStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		counts, err := stats.GetStats(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outbox": counts})
	}
}
