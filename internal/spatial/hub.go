package spatial

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richxcame/dispatch-core/internal/geohash"
	"github.com/richxcame/dispatch-core/pkg/eventbus"
	"github.com/richxcame/dispatch-core/pkg/logger"
	"go.uber.org/zap"
)

// MessageHandler processes one inbound client frame for a given event type.
type MessageHandler func(ctx context.Context, client *Client, data map[string]interface{})

const fanoutSubject = "spatial.fanout"

// wireEmit is the envelope published over NATS core for cross-instance
// fan-out, so a room's members on every instance receive the message
// regardless of which instance originated it.
type wireEmit struct {
	Origin string   `json:"origin"`
	Room   string   `json:"room"`
	Msg    *Message `json:"msg"`
}

// Hub owns room membership and message delivery for every locally
// connected client, and mirrors emits across instances over NATS core.
//
// Contract: every delivery path in this file targets a named room. There
// is no method, channel case, or handler branch that iterates every
// connected client. A caller that wants "everyone" must say so by
// picking a real room (admin, or a geohash) — there is no bypass.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connection id -> client
	rooms   map[string]map[string]*Client // room -> connection id -> client

	Register   chan *Client
	Unregister chan *Client

	handlers map[string]MessageHandler

	bus         *eventbus.Bus
	instanceID  string
	unsubscribe func() error
}

// NewHub creates a hub. bus may be nil, in which case the hub only
// delivers to locally connected clients (single-instance deployments).
func NewHub(bus *eventbus.Bus) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		handlers:   make(map[string]MessageHandler),
		bus:        bus,
		instanceID: uuid.NewString(),
	}
}

// RegisterHandler attaches a handler for an inbound client event type,
// e.g. "connect:location" or "offer:accept".
func (h *Hub) RegisterHandler(event string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = handler
}

// Start wires cross-instance fan-out and runs the hub's main loop until
// ctx is cancelled.
func (h *Hub) Start(ctx context.Context) error {
	if h.bus != nil {
		unsub, err := h.bus.SubscribeCore(fanoutSubject, h.onWireEmit)
		if err != nil {
			return fmt.Errorf("subscribe spatial fanout: %w", err)
		}
		h.unsubscribe = unsub
	}

	for {
		select {
		case <-ctx.Done():
			if h.unsubscribe != nil {
				h.unsubscribe()
			}
			return nil
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) onWireEmit(data []byte) {
	var w wireEmit
	if err := json.Unmarshal(data, &w); err != nil {
		logger.Warn("spatial: malformed wire emit", zap.Error(err))
		return
	}
	if w.Origin == h.instanceID {
		return // already delivered locally by EmitToRoom
	}
	h.deliverLocal(w.Room, w.Msg)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.clients[client.ID]; ok {
		if existing.markClosed() {
			close(existing.Send)
		}
	}
	h.clients[client.ID] = client
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	h.mu.Unlock()

	for _, room := range client.joinedRooms() {
		h.Leave(client, room)
	}
	// markClosed synchronizes with Client.deliver: once it returns true,
	// no delivery can still be sending on Send, so the close is safe.
	if client.markClosed() {
		close(client.Send)
	}
}

// Join adds a client to a room. Rejoining a room the client is already
// in is a no-op.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][client.ID] = client
	client.addRoom(room)
}

// Leave removes a client from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) leaveLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.removeRoom(room)
}

// EmitToRoom is the only way to push a message out of the hub. It
// delivers to every member of room on this instance, in FIFO order
// relative to other EmitToRoom calls targeting the same room, and
// mirrors the emit to other instances over NATS core so their local
// members receive it too. There is no room value that means "everyone";
// AdminRoom and geohash tiles are ordinary rooms, nothing more.
func (h *Hub) EmitToRoom(ctx context.Context, room, event string, payload interface{}) error {
	if room == "" {
		panic("spatial: EmitToRoom called with empty room — global emit is not a supported operation")
	}

	msg := &Message{Room: room, Event: event, Data: payload, Timestamp: time.Now().UTC()}
	h.deliverLocal(room, msg)

	if h.bus == nil {
		return nil
	}
	wire := wireEmit{Origin: h.instanceID, Room: room, Msg: msg}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal wire emit: %w", err)
	}
	if err := h.bus.PublishCore(fanoutSubject, data); err != nil {
		logger.WarnContext(ctx, "spatial: cross-instance fanout failed", zap.String("room", room), zap.Error(err))
	}
	return nil
}

func (h *Hub) deliverLocal(room string, msg *Message) {
	h.mu.RLock()
	members := h.rooms[room]
	recipients := make([]*Client, 0, len(members))
	for _, c := range members {
		recipients = append(recipients, c)
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		c.deliver(msg)
	}
}

// OnDriverMoved implements the driver-room-switch half of the location
// contract: if the driver is connected to this instance and their tile
// changed, leave the old geo room and join the new one, then fan the
// position out to the new tile's 9-neighborhood so riders at the
// boundary see it too.
func (h *Hub) OnDriverMoved(ctx context.Context, driverID uuid.UUID, newHash string, lat, lng, bearing float64) error {
	h.mu.RLock()
	members := h.rooms[DriverRoom(driverID)]
	var driverClient *Client
	for _, c := range members {
		driverClient = c
		break
	}
	h.mu.RUnlock()

	if driverClient != nil {
		old := driverClient.geoHash()
		if old != newHash {
			if old != "" {
				h.Leave(driverClient, GeoRoom(old))
			}
			h.Join(driverClient, GeoRoom(newHash))
			driverClient.setGeoHash(newHash)
		}
	}

	for _, tile := range geohash.Neighbors(newHash) {
		if err := h.EmitToRoom(ctx, GeoRoom(tile), "driver:location:update", map[string]interface{}{
			"driver_id": driverID.String(),
			"lat":       lat,
			"lng":       lng,
			"bearing":   bearing,
			"geo_hash":  newHash,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) handleClientMessage(client *Client, msg *ClientMessage) {
	h.mu.RLock()
	handler, ok := h.handlers[msg.Event]
	h.mu.RUnlock()
	if !ok {
		return
	}
	handler(context.Background(), client, msg.Data)
}

// RoomSize returns the number of locally connected members of a room,
// for metrics and tests.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of locally connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
