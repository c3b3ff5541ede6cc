package realtime

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/model/message"
)

// Hub tracks which connections belong to which room and fans events
// out to them. Rooms are grouping keys only; they hold no state beyond
// the member set.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]bool
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		logger: logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.roomID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[c.roomID] = room
	}
	room[c] = true
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// RoomSize returns the number of connections currently in a room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// BroadcastMessage delivers a chat message to every connection in the
// room, including the sender. Satisfies the AI pipeline's broadcaster
// capability.
func (h *Hub) BroadcastMessage(roomID string, msg message.Message) {
	h.broadcast(roomID, nil, EventProjectMessage, msg)
}

// broadcast fans an event out to a room, skipping the given connection
// when set. Delivery to a slow consumer is dropped rather than
// blocking the room.
func (h *Hub) broadcast(roomID string, skip *Client, event string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[roomID] {
		if c == skip {
			continue
		}
		c.enqueue(event, data)
	}
}
