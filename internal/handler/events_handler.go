package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/niraliveastro/astro-call-service/internal/service"
	"go.uber.org/zap"
)

// EventStreams opens and closes push connections.
type EventStreams interface {
	Open(ctx context.Context, t service.Target) *service.Conn
	Close(c *service.Conn)
}

// eventTarget reads ?astrologerId= or ?global=true. An astrologer id wins when both are given.
func eventTarget(c *gin.Context) (service.Target, bool) {
	if id := c.Query("astrologerId"); id != "" {
		if !validID(id) {
			return service.Target{}, false
		}
		return service.Target{AstrologerID: id}, true
	}
	if c.Query("global") == "true" {
		return service.Target{Global: true}, true
	}
	return service.Target{}, false
}

// EventsHandler streams events as Server-Sent Events.
type EventsHandler struct {
	hub EventStreams
	log *zap.Logger
}

// NewEventsHandler creates the SSE handler.
func NewEventsHandler(hub EventStreams, log *zap.Logger) *EventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventsHandler{hub: hub, log: log}
}

// Stream godoc
// GET /events?astrologerId= | ?global=true
func (h *EventsHandler) Stream(c *gin.Context) {
	target, ok := eventTarget(c)
	if !ok {
		badRequest(c, "astrologerId or global=true is required")
		return
	}

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request.Context()
	conn := h.hub.Open(ctx, target)
	defer h.hub.Close(conn)

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			return
		case frame := <-conn.Frames():
			if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
				h.log.Debug("sse write failed", zap.String("astrologer_id", target.AstrologerID), zap.Error(err))
				return
			}
			w.Flush()
		}
	}
}
