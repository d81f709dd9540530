package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessFunc reports whether dependencies (database, redis) are reachable.
type ReadinessFunc func(ctx context.Context) error

// ConnectionCounter reports open event streams.
type ConnectionCounter interface {
	Counts() (astrologers, global int)
}

// HealthHandler handles health and ready checks.
type HealthHandler struct {
	ready ReadinessFunc
	hub   ConnectionCounter
}

// NewHealthHandler creates a health handler. ready and hub may be nil.
func NewHealthHandler(ready ReadinessFunc, hub ConnectionCounter) *HealthHandler {
	return &HealthHandler{ready: ready, hub: hub}
}

// Health responds to GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"service": "astro-call-service",
		"time":    time.Now().Unix(),
	}
	if h.hub != nil {
		astrologers, global := h.hub.Counts()
		body["connections"] = gin.H{"astrologers": astrologers, "global": global}
	}
	c.JSON(http.StatusOK, body)
}

// Ready responds to GET /ready (for k8s readiness).
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
