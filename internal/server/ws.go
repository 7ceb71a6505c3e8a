package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const (
	// writeWait bounds how long a single websocket write may take.
	writeWait = 5 * time.Second
	// sendQueueSize is the per-client backlog of pending events. A client
	// that falls this far behind starts losing events instead of slowing
	// the broadcasters.
	sendQueueSize = 16
)

// Event is one message pushed to connected device-manager clients.
type Event struct {
	Type      string      `json:"type"` // "gesture", "dispatch", "status"
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// EventsHandler broadcasts gesture and dispatch events to websocket clients.
//
// Each connection has a single writer goroutine fed by a buffered channel,
// so Broadcast never writes to a connection directly: the pipeline and the
// dispatch worker may broadcast concurrently, and a stalled client costs a
// dropped event rather than a blocked caller.
type EventsHandler struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

// NewEventsHandler creates an EventsHandler with no connected clients.
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan []byte, sendQueueSize)

	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()

	go writeLoop(conn, send)

	// Keep the connection registered until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// Unregister before closing the channel so no Broadcast can send on it.
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	close(send)
}

// writeLoop is the sole writer for one connection. It drains the send
// channel until it is closed or a write fails; closing the connection on a
// failed write unblocks the read loop, which unregisters the client.
func writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			break
		}
	}
	// Drain until the read loop closes the channel so a pending Broadcast
	// send never sticks.
	for range send {
	}
}

// Broadcast queues an event for every connected client. It never blocks:
// a client whose queue is full misses the event.
func (h *EventsHandler) Broadcast(eventType string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	for conn, send := range h.clients {
		select {
		case send <- msg:
		default:
			log.Printf("Dropping event for slow websocket client %s", conn.RemoteAddr())
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventsHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
