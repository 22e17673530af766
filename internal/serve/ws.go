package serve

import (
	"net/http"
	"time"

	"github.com/gftdcojp/presence-liveview/internal/metrics"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Auth happens at the JWT layer; origins are not restricted here.
		return true
	},
}

// handleLiveView upgrades the request to a WebSocket and streams
// snapshots for the key until the client disconnects. One connection
// holds exactly one view subscription.
func (h *handler) handleLiveView(w http.ResponseWriter, r *http.Request) {
	key := types.Key(r.PathValue("key"))

	sub, err := h.mux.LiveView(key)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.logger.Warn("websocket upgrade failed", zap.String("key", string(key)), zap.Error(err))
		return
	}

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()
	defer conn.Close()
	defer sub.Close()

	// Read pump: we never expect client frames, but reading is how we
	// learn about close frames and dead peers.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					h.logger.Warn("live view failed",
						zap.String("key", string(key)),
						zap.Error(err),
					)
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "view failed"),
						time.Now().Add(wsWriteTimeout))
					return
				}
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
