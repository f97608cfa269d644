package notify

// hub.go: websocket delivery of per-user notifications. A client connects
// to /ws?user=<id> and receives only that user's events as JSON frames.

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polycopy/engine/internal/domain"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Hub serves websocket subscriptions backed by a Bus.
type Hub struct {
	bus      *Bus
	upgrader websocket.Upgrader
}

// NewHub creates a Hub over the given bus.
func NewHub(bus *Bus) *Hub {
	return &Hub{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The notification stream carries no secrets and existing
			// clients connect cross-origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and streams the user's events until the
// client disconnects. Slow or dead clients are dropped, never waited on.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "missing user parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	events, cancel := h.bus.Subscribe(userID)
	slog.Info("notification client connected", "user", userID)

	go h.writeLoop(conn, userID, events, cancel)
	go h.readLoop(conn, cancel)
}

// writeLoop pushes events and pings; any write error ends the subscription.
func (h *Hub) writeLoop(conn *websocket.Conn, userID string, events <-chan domain.Event, cancel func()) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		cancel()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("notification client dropped", "user", userID, "err", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pings/pongs and close frames are handled.
func (h *Hub) readLoop(conn *websocket.Conn, cancel func()) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
