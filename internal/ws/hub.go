package ws

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"support-console/internal/observability"
)

// ConnInfo describes one signed-in UI tab.
type ConnInfo struct {
	ConnID      string
	AdminID     string
	Role        string
	IP          string
	RequestID   string
	ConnectedAt time.Time
}

func newConnID() string {
	return uuid.NewString()
}

// Hub fans panel updates out to every UI websocket of the signed-in admin.
type Hub struct {
	clients map[*websocket.Conn]ConnInfo
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]ConnInfo)}
}

// AddClient registers a UI connection.
func (h *Hub) AddClient(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = info
}

// RemoveClient unregisters a UI connection.
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

// Len returns the number of connected UI clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to all UI clients, dropping the ones that fail.
func (h *Hub) Broadcast(event string, payload interface{}) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		log.Printf("hub encode %s: %v", event, err)
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveClient(conn)
			observability.IncWSEvent("panel", "ws_error")
		}
	}
}

// Send writes a single frame to one client.
func (h *Hub) Send(conn *websocket.Conn, event string, payload interface{}) error {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}
