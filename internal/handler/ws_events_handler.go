package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/niraliveastro/astro-call-service/internal/service"
	"go.uber.org/zap"
)

const wsWriteWait = 10 * time.Second

// WSEventsHandler streams the same event frames as /events over WebSocket.
type WSEventsHandler struct {
	hub      EventStreams
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewWSEventsHandler creates the WebSocket events handler.
func NewWSEventsHandler(hub EventStreams, readBuf, writeBuf int, log *zap.Logger) *WSEventsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSEventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// ServeWS upgrades the request and pushes frames until either side goes away.
// Path: /ws/events?astrologerId= | ?global=true
func (h *WSEventsHandler) ServeWS(c *gin.Context) {
	target, ok := eventTarget(c)
	if !ok {
		badRequest(c, "astrologerId or global=true is required")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	conn := h.hub.Open(ctx, target)
	defer h.hub.Close(conn)

	go h.readPump(ws, cancel)
	h.writePump(ctx, ws, conn)
}

// readPump discards client messages; its only job is noticing the close.
func (h *WSEventsHandler) readPump(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *WSEventsHandler) writePump(ctx context.Context, ws *websocket.Conn, conn *service.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"),
				time.Now().Add(wsWriteWait))
			return
		case frame := <-conn.Frames():
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}
}
