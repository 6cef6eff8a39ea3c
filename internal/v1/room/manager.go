package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/airshift/studio/internal/v1/logging"
	"github.com/airshift/studio/internal/v1/metrics"
	"github.com/airshift/studio/internal/v1/protocol"
	"github.com/airshift/studio/internal/v1/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyInRoom means the peer must leave its room (or disconnect)
	// before entering another.
	ErrAlreadyInRoom = errors.New("peer is already in a room")

	// ErrRoomNotFound is returned by the strict legacy join path.
	ErrRoomNotFound = errors.New("room not found")
)

// Entry describes the outcome of a room entry operation.
type Entry struct {
	Room         *Room
	RoomID       types.RoomIDType
	Role         types.RoleType // the role actually assigned
	Created      bool
	Participants []protocol.ParticipantInfo // insertion order, includes the entrant
}

// Manager is the process-wide room table. It owns room creation, entry,
// departure, and the destruction of empty rooms, and maintains the invariant
// that a peer is in at most one room at a time.
type Manager struct {
	mu       sync.Mutex
	registry types.ConnRegistry
	rooms    map[types.RoomIDType]*Room
	byPeer   map[types.PeerIDType]types.RoomIDType
}

// NewManager creates a Manager resolving connections through registry.
func NewManager(registry types.ConnRegistry) *Manager {
	return &Manager{
		registry: registry,
		rooms:    make(map[types.RoomIDType]*Room),
		byPeer:   make(map[types.PeerIDType]types.RoomIDType),
	}
}

// CreateOrJoin is the canonical room entry point. An absent or unresolvable
// roomID creates a fresh room with a generated UUID. The peer-joined
// notification to existing members is enqueued inside the same critical
// section that installs the peer, so it is ordered ahead of any relay the new
// member later sends.
func (m *Manager) CreateOrJoin(peerID types.PeerIDType, roomID types.RoomIDType, requested types.RoleType) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, in := m.byPeer[peerID]; in {
		return nil, ErrAlreadyInRoom
	}

	r, exists := m.rooms[roomID]
	created := false
	if roomID == "" || !exists {
		r = newRoom(types.RoomIDType(uuid.NewString()), m.registry)
		m.rooms[r.ID] = r
		created = true
		metrics.ActiveRooms.Inc()
		logging.Info(context.Background(), "Room created", zap.String("room_id", string(r.ID)), zap.String("peer_id", string(peerID)))
	}

	entry := m.installLocked(r, peerID, requested, created)
	return entry, nil
}

// Join is the strict legacy path: the room must already exist.
func (m *Manager) Join(peerID types.PeerIDType, roomID types.RoomIDType, requested types.RoleType) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, in := m.byPeer[peerID]; in {
		return nil, ErrAlreadyInRoom
	}

	r, exists := m.rooms[roomID]
	if !exists {
		return nil, ErrRoomNotFound
	}

	entry := m.installLocked(r, peerID, requested, false)
	return entry, nil
}

// installLocked assigns the effective role, installs the participant, and
// notifies existing members. Caller holds m.mu.
func (m *Manager) installLocked(r *Room, peerID types.PeerIDType, requested types.RoleType, created bool) *Entry {
	r.mu.Lock()

	role := requested
	if role == "" {
		if created {
			role = types.RoleTypeHost
		} else {
			role = types.RoleTypeGuest
		}
	}
	// At most one host per room; a second host claim is admitted as guest.
	if role == types.RoleTypeHost && r.hasHostLocked() {
		logging.Warn(context.Background(), "Room already has a host, assigning guest",
			zap.String("room_id", string(r.ID)), zap.String("peer_id", string(peerID)))
		role = types.RoleTypeGuest
	}

	r.addLocked(Participant{PeerID: peerID, Role: role, JoinedAt: time.Now()})
	if !created {
		r.broadcastLocked(protocol.PeerJoined(peerID, role), peerID)
	}
	participants := r.participantsLocked()
	count := len(r.order)
	r.mu.Unlock()

	m.byPeer[peerID] = r.ID
	metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(count))

	return &Entry{
		Room:         r,
		RoomID:       r.ID,
		Role:         role,
		Created:      created,
		Participants: participants,
	}
}

// Leave removes peerID from its room, broadcasts peer-left to the remaining
// members, and destroys the room synchronously when it empties. Calling Leave
// for a peer with no membership is a no-op.
func (m *Manager) Leave(peerID types.PeerIDType) (types.RoomIDType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.byPeer[peerID]
	if !ok {
		return "", false
	}
	delete(m.byPeer, peerID)

	r := m.rooms[roomID]
	r.mu.Lock()
	r.removeLocked(peerID)
	remaining := len(r.order)
	if remaining > 0 {
		r.broadcastLocked(protocol.PeerLeft(peerID), "")
	}
	r.mu.Unlock()

	if remaining == 0 {
		delete(m.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(string(roomID))
		logging.Info(context.Background(), "Room destroyed on last departure",
			zap.String("room_id", string(roomID)), zap.Duration("lifetime", time.Since(r.CreatedAt())))
	} else {
		metrics.RoomParticipants.WithLabelValues(string(roomID)).Set(float64(remaining))
	}

	return roomID, true
}

// RoomOf resolves the room peerID currently occupies.
func (m *Manager) RoomOf(peerID types.PeerIDType) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.byPeer[peerID]
	if !ok {
		return nil, false
	}
	r, ok := m.rooms[roomID]
	return r, ok
}

// Lookup resolves a room by id.
func (m *Manager) Lookup(roomID types.RoomIDType) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
