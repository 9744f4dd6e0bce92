package server

import (
	"sync"

	"github.com/fenggwsx/StudyChat/internal/protocol"
)

// Hub tracks live connections and dispatches envelopes, either to every
// connection or to the set currently subscribed to one room. Membership is
// consulted at delivery time; a connection that unsubscribed a moment before
// a broadcast does not receive it.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]chan<- protocol.Envelope
	rooms    map[string]map[string]chan<- protocol.Envelope
}

// NewHub initializes an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]chan<- protocol.Envelope),
		rooms:    make(map[string]map[string]chan<- protocol.Envelope),
	}
}

// Register adds a connection's outbound channel to the hub.
func (h *Hub) Register(sessionID string, ch chan<- protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = ch
}

// Unregister removes the connection from the hub and from any room it was
// subscribed to.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
	for room, subscribers := range h.rooms {
		delete(subscribers, sessionID)
		if len(subscribers) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Subscribe adds a registered connection to a room's delivery set.
func (h *Hub) Subscribe(roomID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	subscribers, ok := h.rooms[roomID]
	if !ok {
		subscribers = make(map[string]chan<- protocol.Envelope)
		h.rooms[roomID] = subscribers
	}
	subscribers[sessionID] = ch
}

// Unsubscribe removes the connection from a room's delivery set if present.
func (h *Hub) Unsubscribe(roomID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subscribers, ok := h.rooms[roomID]; ok {
		delete(subscribers, sessionID)
		if len(subscribers) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// DropRoom removes a room's entire delivery set, typically on room deletion.
func (h *Hub) DropRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
}

// ToRoom delivers the envelope to every connection currently subscribed to
// the room. Delivery is best effort; a slow connection's full buffer drops
// the envelope rather than blocking the caller.
func (h *Hub) ToRoom(roomID string, env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.rooms[roomID] {
		deliver(ch, env)
	}
}

// ToRoomExcept delivers to every room subscriber except the named one. Used
// for typing relays, which never echo back to the sender.
func (h *Hub) ToRoomExcept(roomID, exceptID string, env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sessionID, ch := range h.rooms[roomID] {
		if sessionID == exceptID {
			continue
		}
		deliver(ch, env)
	}
}

// ToAll delivers the envelope to every open connection regardless of room.
func (h *Hub) ToAll(env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.sessions {
		deliver(ch, env)
	}
}

func deliver(ch chan<- protocol.Envelope, env protocol.Envelope) {
	select {
	case ch <- env:
	default:
	}
}
