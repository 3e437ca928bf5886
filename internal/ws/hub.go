// Package ws pushes fleet state and map scenes to dashboard clients over websockets.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Envelope is the frame written to clients
type Envelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewEnvelope stamps a message with the current time
func NewEnvelope(msgType string, data any) Envelope {
	return Envelope{Type: msgType, Timestamp: time.Now().Format(time.RFC3339), Data: data}
}

// Commands are the client requests the hub forwards
type Commands interface {
	Activate(vehicleID string) error
	SetFilter(filter string) error
}

// Hub maintains active connections and broadcasts messages to all of them
type Hub struct {
	// Registered clients (client ID -> Client)
	clients map[string]*Client

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	reply      chan reply
	done       chan struct{}

	commands Commands
	greeting func() []Envelope

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(commands Commands) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		reply:      make(chan reply, 64),
		done:       make(chan struct{}),
		commands:   commands,
	}
}

// SetGreeting sets the messages every new client receives first
func (h *Hub) SetGreeting(fn func() []Envelope) {
	h.mu.Lock()
	h.greeting = fn
	h.mu.Unlock()
}

type reply struct {
	client *Client
	env    Envelope
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			greeting := h.greeting
			count := len(h.clients)
			h.mu.Unlock()
			log.Printf("✅ [WEBSOCKET] Client connected: %s (total %d)", client.ID, count)

			if greeting != nil {
				for _, env := range greeting() {
					client.enqueue(env)
				}
			}

		case r := <-h.reply:
			h.mu.RLock()
			_, ok := h.clients[r.client.ID]
			h.mu.RUnlock()
			if ok {
				r.client.enqueue(r.env)
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				log.Printf("🔴 [WEBSOCKET] Client disconnected: %s (remaining %d)", client.ID, len(h.clients))
			}
			h.mu.Unlock()

		case data := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, id)
					log.Printf("⚠️  Client buffer full, disconnecting: %s", id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(NewEnvelope(msgType, data))
	if err != nil {
		log.Printf("❌ Failed to marshal %s message: %v", msgType, err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		log.Printf("⚠️  Broadcast queue full, dropping %s", msgType)
	}
}

func (h *Hub) send(c *Client, env Envelope) {
	select {
	case h.reply <- reply{client: c, env: env}:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
