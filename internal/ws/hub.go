package ws

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/pkg/events"
)

// Relay forwards locally published events to other server instances.
type Relay interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Hub tracks which connections are subscribed to which room. A connection
// is subscribed to at most one room.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Conn]struct{}
	connRoom map[*Conn]string
	relay    Relay
}

func NewHub(relay Relay) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Conn]struct{}),
		connRoom: make(map[*Conn]string),
		relay:    relay,
	}
}

// Subscribe moves c into roomID and returns the room it left, if any.
func (h *Hub) Subscribe(c *Conn, roomID string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous := h.connRoom[c]
	if previous == roomID {
		return ""
	}
	if previous != "" {
		h.detach(c, previous)
	}

	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.rooms[roomID] = set
	}
	set[c] = struct{}{}
	h.connRoom[c] = roomID

	zlog.Debug().Str("conn_id", c.id).Str("room_id", roomID).Str("previous", previous).Msg("subscribed")
	return previous
}

// Unsubscribe removes c from roomID. It reports false when c was not
// subscribed to that room.
func (h *Hub) Unsubscribe(c *Conn, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connRoom[c] != roomID {
		return false
	}
	h.detach(c, roomID)
	zlog.Debug().Str("conn_id", c.id).Str("room_id", roomID).Msg("unsubscribed")
	return true
}

// Remove forgets c entirely. Called when the transport goes away.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if roomID, ok := h.connRoom[c]; ok {
		h.detach(c, roomID)
	}
}

func (h *Hub) detach(c *Conn, roomID string) {
	if set, ok := h.rooms[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.connRoom, c)
}

// RoomOf returns the room c is subscribed to, or "".
func (h *Hub) RoomOf(c *Conn) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connRoom[c]
}

// Subscribers counts the connections subscribed to roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Publish delivers p to the local subscribers of roomID and hands it to the
// relay. Delivery never waits on a slow client.
func (h *Hub) Publish(ctx context.Context, roomID string, p events.Payload) error {
	ev, err := events.New(roomID, p)
	if err != nil {
		return err
	}
	h.Deliver(ev)

	if h.relay != nil {
		if err := h.relay.Publish(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Deliver sends ev to local subscribers only. Relay consumers feed events
// from other instances through here.
func (h *Hub) Deliver(ev events.Event) {
	frame, err := ev.Frame()
	if err != nil {
		zlog.Error().Err(err).Str("room_id", ev.RoomID).Str("event", string(ev.Type)).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.rooms[ev.RoomID]
	for c := range set {
		c.enqueue(frame)
	}
	zlog.Debug().Str("room_id", ev.RoomID).Str("event", string(ev.Type)).Int("subscribers", len(set)).Msg("event delivered")
}

// send writes a sender-only event, e.g. an ack or an error.
func (h *Hub) send(c *Conn, roomID string, p events.Payload) {
	ev, err := events.New(roomID, p)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to build direct event")
		return
	}
	frame, err := ev.Frame()
	if err != nil {
		zlog.Error().Err(err).Msg("failed to encode direct event")
		return
	}
	c.enqueue(frame)
}
