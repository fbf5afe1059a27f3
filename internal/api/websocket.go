package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pulsehub/internal/hub"
	"pulsehub/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// StreamHandler pushes one filtered snapshot per aggregation cycle over a
// websocket. Each connection is backed by a capacity-one hub subscription,
// so a slow client only ever receives the most recent snapshot and never
// blocks the pipeline.
type StreamHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	log      logger.Logger
}

// NewStreamHandler creates a snapshot stream handler
func NewStreamHandler(h *hub.Hub, log logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "stream"),
	}
}

// Stream upgrades the connection and forwards snapshots until the client
// disconnects
func (h *StreamHandler) Stream(c *gin.Context) {
	modules := callerModules(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub, cancel := h.hub.Subscribe(modules)
	defer cancel()

	// Reader goroutine: consumes control frames and detects disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current snapshot immediately so the client does not wait a
	// full cycle for its first frame.
	if snapshot, err := h.hub.GetSnapshot(modules); err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case snapshot := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshot); err != nil {
				h.log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
