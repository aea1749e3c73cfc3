package ws

import (
	"context"
	"sync"

	"spindle/internal/observability"

	"github.com/gorilla/websocket"
)

// Hub tracks open game connections and broadcasts announcements to them.
type Hub struct {
	connections map[*websocket.Conn]struct{}
	Register    chan *websocket.Conn
	Unregister  chan *websocket.Conn
	Broadcast   chan []byte
	metrics     *observability.Metrics
	mu          sync.Mutex
}

// NewHub constructs a Hub. Metrics are optional.
func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]struct{}),
		Register:    make(chan *websocket.Conn),
		Unregister:  make(chan *websocket.Conn),
		Broadcast:   make(chan []byte),
		metrics:     metrics,
	}
}

// Run processes register, unregister and broadcast events until the context
// ends, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.connections {
				conn.Close()
				delete(h.connections, conn)
				h.metrics.WSDisconnected()
			}
			h.mu.Unlock()
			return
		case conn := <-h.Register:
			h.mu.Lock()
			h.connections[conn] = struct{}{}
			h.mu.Unlock()
			h.metrics.WSConnected()
		case conn := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				h.metrics.WSDisconnected()
			}
			h.mu.Unlock()
			conn.Close()
		case msg := <-h.Broadcast:
			h.mu.Lock()
			for conn := range h.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.connections, conn)
					h.metrics.WSDisconnected()
				}
			}
			h.mu.Unlock()
		}
	}
}
