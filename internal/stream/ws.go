package stream

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Subscribers only listen, so
	// anything larger than a control frame is suspect.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleWS opens a WebSocket channel carrying the same events as the SSE
// endpoint, framed as JSON objects {type, id, data}.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		http.Error(w, "missing required 'lang' query parameter", http.StatusBadRequest)
		return
	}
	if !h.langValid(lang) {
		http.Error(w, "unsupported language: "+lang, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.register(lang, protoWS, uuid.New().String())

	h.logger.Info("ws subscriber connected",
		zap.Uint64("clientId", sub.id),
		zap.String("connID", sub.connID),
		zap.String("lang", lang),
		zap.String("remoteAddr", r.RemoteAddr),
	)

	go h.writePump(sub, conn)
	go h.readPump(sub, conn)
}

// readPump drains the connection to process control frames. Subscribers do
// not speak; any read error ends the connection.
func (h *Hub) readPump(sub *subscriber, conn *websocket.Conn) {
	defer func() {
		h.remove(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error",
					zap.String("connID", sub.connID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

// writePump forwards queued frames to the connection and keeps it alive with
// protocol-level pings.
func (h *Hub) writePump(sub *subscriber, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-sub.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("websocket write error",
					zap.String("connID", sub.connID),
					zap.Error(err),
				)
				h.remove(sub)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(sub)
				return
			}
		}
	}
}
