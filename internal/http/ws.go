package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// sessionsSocket pushes periodic session telemetry snapshots to a websocket
// client until it disconnects or the request context ends.
func (h *Handler) sessionsSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			snaps := h.manager.Sessions()
			resp := make([]SessionResponse, len(snaps))
			for i := range snaps {
				resp[i] = sessionToResponse(snaps[i])
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(wsMessage{Type: "sessions", Data: resp}); err != nil {
				return
			}
		}
	}
}
