package websocket

import (
	"encoding/json"
	"sync"
	"time"

	fiberws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Hub maintains the set of active staff connections and fans events out to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mutex sync.RWMutex
}

// Client is one connected dashboard session.
type Client struct {
	hub    *Hub
	send   chan []byte
	userID uint
	role   string
}

// Message is the envelope of every event pushed to clients.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run services register, unregister and broadcast requests until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			logrus.WithFields(logrus.Fields{"user_id": client.userID, "role": client.role}).Debug("websocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			logrus.WithField("user_id", client.userID).Debug("websocket client disconnected")

		case message := <-h.broadcast:
			h.deliver(message, func(*Client) bool { return true })
		}
	}
}

// deliver queues message for every matching client and drops clients whose buffer is full.
func (h *Hub) deliver(message []byte, match func(*Client) bool) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	sent := 0
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.send <- message:
			sent++
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	return sent
}

// Publish sends a typed event to every connected client.
func (h *Hub) Publish(event string, data interface{}) {
	payload, err := json.Marshal(Message{Type: event, Data: data, Timestamp: time.Now()})
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("failed to marshal websocket event")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logrus.WithField("event", event).Warn("websocket broadcast channel is full")
	}
}

// PublishToUser sends a typed event to one user's sessions.
func (h *Hub) PublishToUser(userID uint, event string, data interface{}) int {
	payload, err := json.Marshal(Message{Type: event, Data: data, Timestamp: time.Now()})
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("failed to marshal websocket event")
		return 0
	}
	return h.deliver(payload, func(c *Client) bool { return c.userID == userID })
}

func (h *Hub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// ServeFiberWS runs one connection until it closes. The read pump runs on the
// caller's goroutine since the fiber connection must not outlive the handler.
func (h *Hub) ServeFiberWS(c *fiberws.Conn, userID uint, role string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{"user_id": userID, "panic": r}).Error("websocket handler panicked")
		}
	}()

	client := &Client{
		hub:    h,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		role:   role,
	}
	h.register <- client

	done := make(chan struct{})
	go h.writePump(client, c, done)
	h.readPump(client, c)
	close(done)
}

func (h *Hub) writePump(client *Client, c *fiberws.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{"user_id": client.userID, "panic": r}).Error("websocket write pump panicked")
		}
	}()

	for {
		select {
		case <-done:
			return
		case message, ok := <-client.send:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.WriteMessage(fiberws.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.WriteMessage(fiberws.TextMessage, message); err != nil {
				logrus.WithError(err).WithField("user_id", client.userID).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(fiberws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(client *Client, c *fiberws.Conn) {
	defer func() {
		h.unregister <- client
		_ = c.Close()
	}()

	c.SetReadLimit(maxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		// Clients only receive; inbound frames are read to service pongs and closes.
		if _, _, err := c.ReadMessage(); err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseGoingAway, fiberws.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", client.userID).Debug("websocket closed unexpectedly")
			}
			return
		}
	}
}

// CloseMessage builds a close frame payload for rejected handshakes.
func CloseMessage(text string) []byte {
	return websocket.FormatCloseMessage(websocket.ClosePolicyViolation, text)
}
