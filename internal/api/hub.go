package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orbi-bot/orbi/internal/logging"
)

// client is one connected UI (face screen, dashboard, controller).
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to every connected WebSocket client. Extensions
// and the action dispatcher talk to the UIs exclusively through
// Broadcast.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	log *logging.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
		clients: make(map[string]*client),
		log:     logging.Component("ws"),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to all connected clients. Slow clients get
// skipped rather than blocking the sender.
func (h *Hub) Broadcast(message map[string]interface{}) {
	data, err := marshalMessage(message)
	if err != nil {
		h.log.Warn("broadcast marshal failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("client %s send buffer full, dropping message", c.id)
		}
	}
}

// Send delivers a message to a single client.
func (h *Hub) Send(clientID string, message map[string]interface{}) {
	data, err := marshalMessage(message)
	if err != nil {
		return
	}

	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ServeWS upgrades an HTTP request to a WebSocket connection and runs
// the read/write pumps until the client disconnects. onMessage is
// called for every JSON message the client sends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, onMessage func(clientID string, data map[string]interface{}), onConnect func(clientID string)) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, 32),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("client connected. Total: %d", total)

	go h.writePump(c)

	if onConnect != nil {
		onConnect(c.id)
	}

	h.readPump(c, onMessage)
}

func (h *Hub) readPump(c *client, onMessage func(string, map[string]interface{})) {
	defer h.remove(c)

	for {
		var data map[string]interface{}
		if err := c.conn.ReadJSON(&data); err != nil {
			return
		}
		if onMessage != nil {
			onMessage(c.id, data)
		}
	}
}

func (h *Hub) writePump(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.conn.Close()
	h.log.Info("client disconnected. Total: %d", total)
}

func marshalMessage(message map[string]interface{}) ([]byte, error) {
	return json.Marshal(message)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		c.conn.Close()
		delete(h.clients, id)
	}
}
