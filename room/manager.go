package room

import (
	"sync"

	"canvashub/logging"
)

// Manager owns the set of live rooms, one per canvas with at least one
// attached member. A room is created on first Join and destroyed on
// the Leave that empties it (spec §4.E room lifecycle).
type Manager struct {
	mutex sync.Mutex
	rooms map[string]*Room
}

// NewManager returns an empty room manager.
func NewManager() *Manager {
	return &Manager{rooms: make(map[string]*Room)}
}

// Join attaches member to the room for canvasID, creating the room if
// this is its first member.
func (mgr *Manager) Join(canvasID string, member *Member) (*Room, int) {
	mgr.mutex.Lock()
	r, ok := mgr.rooms[canvasID]
	if !ok {
		r = newRoom(canvasID, func() { mgr.destroyRoom(canvasID) })
		mgr.rooms[canvasID] = r
		logging.Info("room created", map[string]interface{}{"canvas_id": canvasID})
	}
	mgr.mutex.Unlock()

	count := r.Join(member)
	return r, count
}

// Leave detaches member from the room for canvasID, destroying the
// room if it becomes empty (via the room's own onEmpty callback). No-op
// if the room doesn't exist.
func (mgr *Manager) Leave(canvasID string, member *Member) int {
	mgr.mutex.Lock()
	r, ok := mgr.rooms[canvasID]
	mgr.mutex.Unlock()
	if !ok {
		return 0
	}

	return r.dropMember(member)
}

// destroyRoom removes canvasID's room entry, provided it hasn't already
// been replaced by a newer room (e.g. a fresh Join racing a concurrent
// empty-out). Invoked by a room's onEmpty callback, whether the last
// member left via explicit Leave or was dropped by Broadcast
// backpressure.
func (mgr *Manager) destroyRoom(canvasID string) {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	if r, ok := mgr.rooms[canvasID]; ok && r.Empty() {
		delete(mgr.rooms, canvasID)
		logging.Info("room destroyed, last member left", map[string]interface{}{"canvas_id": canvasID})
	}
}

// Get returns the room for canvasID if one currently exists.
func (mgr *Manager) Get(canvasID string) (*Room, bool) {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	r, ok := mgr.rooms[canvasID]
	return r, ok
}

// RoomCount reports how many canvases currently have at least one
// attached member. Exposed for health/metrics reporting.
func (mgr *Manager) RoomCount() int {
	mgr.mutex.Lock()
	defer mgr.mutex.Unlock()
	return len(mgr.rooms)
}
