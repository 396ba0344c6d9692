// Package room implements the in-memory fan-out membership for a
// single canvas (spec §4.E): who is currently attached, and
// broadcasting a message to everyone but the sender. Liveness
// (ping/pong) and the wire envelope format are owned by the session
// layer on top of this package, mirroring how the teacher separates
// its WebSocket hub from its per-connection client.
package room

import (
	"sync"

	"canvashub/logging"
)

// Member is anything a room can fan a message out to. The session
// layer constructs one per live WebSocket connection.
type Member struct {
	ConnectionID string
	UserID       string
	Send         chan []byte
}

// Room is the membership set for one canvas. Safe for concurrent use.
type Room struct {
	canvasID string
	mutex    sync.RWMutex
	members  map[*Member]bool
	onEmpty  func()
}

func newRoom(canvasID string, onEmpty func()) *Room {
	return &Room{
		canvasID: canvasID,
		members:  make(map[*Member]bool),
		onEmpty:  onEmpty,
	}
}

// Join attaches m to the room and returns the resulting member count.
func (r *Room) Join(m *Member) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.members[m] = true
	return len(r.members)
}

// Leave detaches m from the room and returns the resulting member
// count. Does not invoke onEmpty — callers that need the room
// destroyed when its membership hits zero should use dropMember, which
// is the only path (explicit Leave or Broadcast backpressure) that
// triggers manager-level cleanup.
func (r *Room) Leave(m *Member) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.members, m)
	return len(r.members)
}

// dropMember detaches m and, if that empties the room, notifies the
// manager via onEmpty so its canvasId -> *Room entry doesn't leak.
// Used both by Leave's caller in the session layer and by Broadcast's
// backpressure path, which removes a member without the connection
// itself asking to leave.
func (r *Room) dropMember(m *Member) int {
	count := r.Leave(m)
	if count == 0 && r.onEmpty != nil {
		r.onEmpty()
	}
	return count
}

// Empty reports whether the room has no members left.
func (r *Room) Empty() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.members) == 0
}

// Members returns a snapshot of the current membership, safe to range
// over after the call returns.
func (r *Room) Members() []*Member {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	return out
}

// Broadcast fans payload out to every member except exclude (which may
// be nil). A member whose send buffer is full is dropped rather than
// blocking the broadcaster — the same backpressure policy the teacher
// hub applies to its global broadcast channel.
func (r *Room) Broadcast(payload []byte, exclude *Member) {
	for _, m := range r.Members() {
		if m == exclude {
			continue
		}
		select {
		case m.Send <- payload:
		default:
			logging.Warn("dropping broadcast, member send buffer full", map[string]interface{}{
				"canvas_id":     r.canvasID,
				"connection_id": m.ConnectionID,
			})
			// Only drop the member from this room's membership. The
			// send channel is owned by the session.Connection that
			// created it; closing it here would race with that
			// connection's own writes and panic.
			r.dropMember(m)
		}
	}
}
