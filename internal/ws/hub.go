// Package ws pushes live message updates to chat clients over WebSocket.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"showrunner/internal/session"
	"showrunner/pkg/logging"

	"github.com/gorilla/websocket"
)

// Hub maintains the set of active clients and routes message updates to the
// clients watching each session.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	mutex      sync.RWMutex
}

// Client represents one WebSocket connection and the sessions it watches.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	sessions []string
	logger   logging.Logger
}

// Envelope is the wire shape of every frame sent to clients.
type Envelope struct {
	Type      string              `json:"type"`
	SessionID string              `json:"session_id"`
	Data      session.BaseMessage `json:"data"`
	Timestamp time.Time           `json:"timestamp"`
}

// SubscriptionMessage is a subscription request from a client.
type SubscriptionMessage struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Sessions []string `json:"sessions"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a hub. Call Run in its own goroutine before serving.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": len(h.clients),
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": len(h.clients),
			}).Info("Client disconnected")

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Push delivers an output message snapshot to every client watching its
// session. Delivery is best effort: a full hub queue drops the frame with a
// warning and the run carries on.
func (h *Hub) Push(update session.BaseMessage) {
	frame, err := json.Marshal(Envelope{
		Type:      "message_update",
		SessionID: update.SessionID,
		Data:      update,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal message update")
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		h.logger.WithField("session_id", update.SessionID).Warn("Broadcast channel full, dropping update")
	}
}

// broadcastMessage fans a frame out to the clients watching its session.
func (h *Hub) broadcastMessage(message []byte) {
	var envelope Envelope
	if err := json.Unmarshal(message, &envelope); err != nil {
		h.logger.WithError(err).Error("Failed to unmarshal broadcast frame")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		watching := false
		for _, id := range client.sessions {
			if id == envelope.SessionID || id == "all" {
				watching = true
				break
			}
		}
		if !watching {
			continue
		}

		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// GetStats returns hub statistics.
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	sessionStats := make(map[string]int)
	for client := range h.clients {
		for _, id := range client.sessions {
			sessionStats[id]++
		}
	}

	return map[string]interface{}{
		"total_clients":         len(h.clients),
		"session_subscriptions": sessionStats,
	}
}

// ServeWS handles WebSocket upgrade requests from clients.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		logger: h.logger,
	}

	// A session id in the query subscribes immediately, without a
	// subscription frame.
	if id := r.URL.Query().Get("session_id"); id != "" {
		client.sessions = []string{id}
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// readPump pumps subscription frames from the connection to the client state.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps frames from the hub to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued frames into the same WebSocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests.
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		c.sessions = append(c.sessions, msg.Sessions...)
		c.logger.WithFields(logging.Fields{
			"sessions": msg.Sessions,
		}).Info("Client subscribed to sessions")

		c.sendControl(map[string]interface{}{
			"type":     "subscription_confirmed",
			"sessions": c.sessions,
		})

	case "unsubscribe":
		for _, id := range msg.Sessions {
			for i, existing := range c.sessions {
				if existing == id {
					c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
					break
				}
			}
		}

		c.logger.WithFields(logging.Fields{
			"unsubscribed": msg.Sessions,
			"remaining":    c.sessions,
		}).Info("Client unsubscribed from sessions")

		c.sendControl(map[string]interface{}{
			"type":     "unsubscription_confirmed",
			"sessions": c.sessions,
		})
	}
}

// sendControl sends a control frame to the client.
func (c *Client) sendControl(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal control frame")
		return
	}

	select {
	case c.send <- message:
	default:
		close(c.send)
	}
}
