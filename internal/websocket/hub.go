package websocket

import (
	"log/slog"
	"sync"

	"pairchat/internal/observability"
)

// Subscriber is a live connection as seen by the hub. Send must not block:
// it reports false when the subscriber cannot keep up, at which point the
// hub evicts it.
type Subscriber interface {
	// Send queues a payload for delivery. Returns false if the subscriber's
	// buffer is full.
	Send(payload []byte) bool
	// Close releases the subscriber's delivery channel.
	Close()
	// Key identifies the subscriber in logs.
	Key() string
}

// Hub tracks which live connections are subscribed to which room keys and
// fans broadcast payloads out to them. Membership is in-memory and process
// local: it is lost on restart and rederived lazily from the next inbound
// message, so nothing here is persisted.
//
// All state is guarded by a single RWMutex rather than a goroutine loop so
// that a join observed by a caller is guaranteed to be visible to the
// broadcast that follows it.
type Hub struct {
	mu sync.RWMutex

	// rooms maps room key -> subscriber set.
	rooms map[string]map[Subscriber]bool

	// subscriptions maps subscriber -> set of room keys, for LeaveAll.
	subscriptions map[Subscriber]map[string]bool

	closed bool
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		rooms:         make(map[string]map[Subscriber]bool),
		subscriptions: make(map[Subscriber]map[string]bool),
	}
}

// Join subscribes sub to a room. Joining a room the subscriber already
// belongs to is a no-op; the return value reports whether the subscription
// is new.
func (h *Hub) Join(sub Subscriber, roomKey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[Subscriber]bool)
	}
	if h.rooms[roomKey][sub] {
		return false
	}

	h.rooms[roomKey][sub] = true
	if h.subscriptions[sub] == nil {
		h.subscriptions[sub] = make(map[string]bool)
	}
	h.subscriptions[sub][roomKey] = true

	observability.RoomSubscriptionsActive.Inc()
	slog.Debug("subscriber joined room",
		slog.String("subscriber", sub.Key()),
		slog.String("room_key", roomKey))
	return true
}

// Leave removes sub from a single room.
func (h *Hub) Leave(sub Subscriber, roomKey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sub, roomKey)
}

// LeaveAll removes sub from every room it is subscribed to. Invoked on
// disconnect.
func (h *Hub) LeaveAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomKey := range h.subscriptions[sub] {
		h.leaveLocked(sub, roomKey)
	}
}

func (h *Hub) leaveLocked(sub Subscriber, roomKey string) {
	members, ok := h.rooms[roomKey]
	if !ok || !members[sub] {
		return
	}

	delete(members, sub)
	if len(members) == 0 {
		delete(h.rooms, roomKey)
	}

	delete(h.subscriptions[sub], roomKey)
	if len(h.subscriptions[sub]) == 0 {
		delete(h.subscriptions, sub)
	}

	observability.RoomSubscriptionsActive.Dec()
}

// Members returns a snapshot of the room's current subscribers.
func (h *Hub) Members(roomKey string) []Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]Subscriber, 0, len(h.rooms[roomKey]))
	for sub := range h.rooms[roomKey] {
		members = append(members, sub)
	}
	return members
}

// Broadcast delivers payload to every current member of the room, exactly
// once each. Members that cannot keep up are evicted and closed so the
// write pump terminates. Returns the number of members the payload was
// queued for.
func (h *Hub) Broadcast(roomKey string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	var slow []Subscriber
	for sub := range h.rooms[roomKey] {
		if sub.Send(payload) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}

	for _, sub := range slow {
		slog.Warn("evicting slow subscriber",
			slog.String("subscriber", sub.Key()),
			slog.String("room_key", roomKey))
		for rk := range h.subscriptions[sub] {
			h.leaveLocked(sub, rk)
		}
		sub.Close()
	}

	observability.MessagesBroadcast.Add(float64(delivered))
	return delivered
}

// Shutdown evicts and closes every subscriber. Further joins are rejected.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	for sub, rooms := range h.subscriptions {
		for roomKey := range rooms {
			h.leaveLocked(sub, roomKey)
		}
		sub.Close()
	}

	slog.Info("hub shutdown complete")
}
