package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection to a frontend. An empty SessionID
// subscribes to everything; a non-empty one only receives events for that
// session.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// WritePump drains this channel onto the connection.
	send chan WsEvent

	SessionID string
}

// Hub tracks active clients and fans events out to them.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client

	broadcast chan WsEvent

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan WsEvent, 256),
	}
}

// Run must be started in its own goroutine before the first Publish.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.SessionID != "" && client.SessionID != event.SessionID {
					continue
				}
				select {
				case client.send <- event:
				default:
					// Full buffer means a stuck client; drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish sends an event to every subscribed client. Implements
// RealtimePublisher.
func (h *Hub) Publish(event WsEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.broadcast <- event
}

// RealtimePublisher decouples the services that emit realtime events from
// the hub itself.
type RealtimePublisher interface {
	Publish(event WsEvent)
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WsEvent, 256),
		SessionID: sessionID,
	}
}

// WritePump pushes events from the send channel onto the connection.
// Run as a goroutine from the /ws handler.
func (c *Client) WritePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for event := range c.send {
		payload, err := json.Marshal(event)
		if err != nil {
			log.Printf("ws: failed to marshal event: %v", err)
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("ws: failed to write message: %v", err)
			return
		}
	}
}

// ReadPump consumes (and discards) client frames so pings and close frames
// are processed.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)

	_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(15 * time.Minute))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
