package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan []byte
}

// IncomingMessage is a request sent by a client
type IncomingMessage struct {
	Type string `json:"type"`
	Data struct {
		VehicleID string `json:"vehicle_id"`
		Route     string `json:"route"`
	} `json:"data"`
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		hub:  hub,
		send: make(chan []byte, 64),
	}
}

// enqueue must only run on the hub goroutine, which owns the send channel
func (c *Client) enqueue(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("❌ Failed to marshal %s message: %v", env.Type, err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("⚠️  Client %s buffer full, dropping %s", c.ID, env.Type)
	}
}

// ReadPump reads client requests until the connection closes
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg IncomingMessage) {
	var err error
	switch msg.Type {
	case "ping":
		c.hub.send(c, NewEnvelope("pong", nil))
		return
	case "select":
		if c.hub.commands != nil {
			err = c.hub.commands.Activate(msg.Data.VehicleID)
		}
	case "filter":
		if c.hub.commands != nil {
			err = c.hub.commands.SetFilter(msg.Data.Route)
		}
	default:
		log.Printf("Unknown message type from %s: %q", c.ID, msg.Type)
		return
	}
	if err != nil {
		c.hub.send(c, NewEnvelope("error", map[string]string{"request": msg.Type, "error": err.Error()}))
	}
}

// WritePump writes queued messages and pings to the connection
func (c *Client) WritePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// HandleWebSocket upgrades the request and attaches the connection to the hub
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := newClient(conn, hub)
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
