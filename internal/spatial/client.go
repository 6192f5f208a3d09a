package spatial

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ClientMessage is an inbound frame from a connected client.
type ClientMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// Client is one live WebSocket connection, identified by entity and role.
type Client struct {
	ID       string // connection id (random per socket, not the entity id)
	EntityID uuid.UUID
	DriverID *uuid.UUID // set only for driver-role connections
	Role     string     // "rider", "driver", or "admin"
	Conn     *websocket.Conn
	Send     chan *Message
	hub      *Hub

	mu            sync.RWMutex
	rooms         map[string]struct{}
	currentGeoHash string
	closed         bool
}

func newClient(id string, entityID uuid.UUID, role string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:       id,
		EntityID: entityID,
		Role:     role,
		Conn:     conn,
		Send:     make(chan *Message, 256),
		hub:      hub,
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) joinedRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (c *Client) addRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room] = struct{}{}
}

func (c *Client) removeRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *Client) geoHash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentGeoHash
}

func (c *Client) setGeoHash(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentGeoHash = hash
}

// deliver enqueues a message for this client, dropping the connection if
// its send buffer is saturated rather than blocking the sender. The
// send happens under c.mu and the hub flips the closed flag under the
// same lock before closing Send, so a delivery in flight during
// disconnect can never send on the closed channel.
func (c *Client) deliver(msg *Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	select {
	case c.Send <- msg:
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		c.hub.Unregister <- c
	}
}

// markClosed flips the closed flag, returning false if it was already
// set. The caller that wins may close Send; nobody else touches it.
func (c *Client) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// ReadPump pumps inbound frames from the socket to the hub's dispatcher.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ClientMessage
		if err := c.Conn.ReadJSON(&msg); err != nil {
			break
		}
		c.hub.handleClientMessage(c, &msg)
	}
}

// WritePump pumps queued messages from the hub to the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
