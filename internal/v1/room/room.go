// Package room manages rooms: ordered participant sets with role
// assignments, membership notifications, and broadcast delivery.
package room

import (
	"sync"
	"time"

	"github.com/airshift/studio/internal/v1/protocol"
	"github.com/airshift/studio/internal/v1/types"
)

// Participant is one member of a room. Rooms hold peer ids and roles only;
// connections are resolved through the registry at send time.
type Participant struct {
	PeerID   types.PeerIDType
	Role     types.RoleType
	JoinedAt time.Time
}

// Room is an insertion-ordered participant set. All mutation goes through the
// Manager, which serializes room entry and departure; Room methods protect
// the participant list itself.
type Room struct {
	ID        types.RoomIDType
	createdAt time.Time

	mu       sync.RWMutex
	order    []Participant // insertion order preserved
	registry types.ConnRegistry
}

func newRoom(id types.RoomIDType, registry types.ConnRegistry) *Room {
	return &Room{
		ID:        id,
		createdAt: time.Now(),
		registry:  registry,
	}
}

// CreatedAt returns the room's creation time.
func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// Len returns the current participant count.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Contains reports whether id is a member.
func (r *Room) Contains(id types.PeerIDType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOfLocked(id) >= 0
}

// RoleOf returns the member's role.
func (r *Room) RoleOf(id types.PeerIDType) (types.RoleType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOfLocked(id); i >= 0 {
		return r.order[i].Role, true
	}
	return "", false
}

// HostID returns the current host, if any.
func (r *Room) HostID() (types.PeerIDType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.order {
		if p.Role == types.RoleTypeHost {
			return p.PeerID, true
		}
	}
	return "", false
}

// ParticipantsSnapshot returns the insertion-ordered participant list in wire
// form, safe to send to a joiner.
func (r *Room) ParticipantsSnapshot() []protocol.ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participantsLocked()
}

// Broadcast sends a pre-serialized frame to every member except exclude.
// The participant set is snapshotted under the lock; writes happen outside it
// so one slow recipient cannot stall the room. Members whose connection is
// missing are silently skipped; a later peer-left reconciles.
func (r *Room) Broadcast(data []byte, exclude types.PeerIDType) {
	r.mu.RLock()
	targets := make([]types.PeerIDType, 0, len(r.order))
	for _, p := range r.order {
		if p.PeerID != exclude {
			targets = append(targets, p.PeerID)
		}
	}
	r.mu.RUnlock()

	for _, id := range targets {
		if conn, ok := r.registry.Lookup(id); ok {
			conn.SendPriority(data)
		}
	}
}

// --- internal, caller holds r.mu ---

func (r *Room) indexOfLocked(id types.PeerIDType) int {
	for i, p := range r.order {
		if p.PeerID == id {
			return i
		}
	}
	return -1
}

func (r *Room) hasHostLocked() bool {
	for _, p := range r.order {
		if p.Role == types.RoleTypeHost {
			return true
		}
	}
	return false
}

func (r *Room) addLocked(p Participant) {
	r.order = append(r.order, p)
}

func (r *Room) removeLocked(id types.PeerIDType) bool {
	i := r.indexOfLocked(id)
	if i < 0 {
		return false
	}
	r.order = append(r.order[:i], r.order[i+1:]...)
	return true
}

func (r *Room) participantsLocked() []protocol.ParticipantInfo {
	parts := make([]protocol.ParticipantInfo, 0, len(r.order))
	for _, p := range r.order {
		parts = append(parts, protocol.ParticipantInfo{
			PeerID:   p.PeerID,
			Role:     p.Role,
			JoinedAt: p.JoinedAt.UnixMilli(),
		})
	}
	return parts
}

// broadcastLocked enqueues a frame to every member except exclude while the
// caller holds r.mu. Sends are non-blocking channel enqueues, so holding the
// lock is safe; the Manager relies on this to order peer-joined ahead of any
// relay from the new member.
func (r *Room) broadcastLocked(data []byte, exclude types.PeerIDType) {
	for _, p := range r.order {
		if p.PeerID == exclude {
			continue
		}
		if conn, ok := r.registry.Lookup(p.PeerID); ok {
			conn.SendPriority(data)
		}
	}
}
