package mockapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/storefront-dev/storefront/pkg/realtime"
)

// Hub keeps the open push sockets, keyed by the user they belong to.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]string
	writeMu  sync.Mutex
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// serve upgrades the request and holds the socket until the client leaves.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.clients[conn] = userID
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Send writes ev to every socket of userID and returns how many received it.
func (h *Hub) Send(userID string, ev realtime.Event) int {
	data, err := realtime.EncodeFrame(ev)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	var targets []*websocket.Conn
	for conn, uid := range h.clients {
		if uid == userID {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, conn := range targets {
		h.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		h.writeMu.Unlock()
		if err != nil {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// ClientCount returns the number of open sockets for userID, or of all
// sockets when userID is empty.
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if userID == "" {
		return len(h.clients)
	}
	n := 0
	for _, uid := range h.clients {
		if uid == userID {
			n++
		}
	}
	return n
}

// Drop closes every socket of userID, as a server-side disconnect would.
func (h *Hub) Drop(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, uid := range h.clients {
		if uid == userID {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Close closes all sockets.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
