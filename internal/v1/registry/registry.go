// Package registry maintains the process-wide bidirectional mapping between
// registered peer identifiers and their live connections.
package registry

import (
	"errors"
	"sync"

	"github.com/airshift/studio/internal/v1/metrics"
	"github.com/airshift/studio/internal/v1/types"
)

// ErrPeerIDTaken is returned when a register call names an identifier that is
// already bound to an open connection. The existing binding is untouched.
var ErrPeerIDTaken = errors.New("peer id already taken")

// Registry enforces at most one connection per peer id and at most one peer
// id per connection. Uniqueness is global, not per-room.
type Registry struct {
	mu    sync.RWMutex
	peers map[types.PeerIDType]types.PeerConn
	conns map[types.PeerConn]types.PeerIDType
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		peers: make(map[types.PeerIDType]types.PeerConn),
		conns: make(map[types.PeerConn]types.PeerIDType),
	}
}

// Register binds id to conn. Fails without mutation if id is already bound to
// any open connection, or if conn already registered a different id.
func (r *Registry) Register(id types.PeerIDType, conn types.PeerConn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.peers[id]; taken {
		return ErrPeerIDTaken
	}
	if _, bound := r.conns[conn]; bound {
		return errors.New("connection already registered")
	}

	r.peers[id] = conn
	r.conns[conn] = id
	metrics.RegisteredPeers.Set(float64(len(r.peers)))
	return nil
}

// Unregister releases id. Idempotent.
func (r *Registry) Unregister(id types.PeerIDType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.peers[id]; ok {
		delete(r.peers, id)
		delete(r.conns, conn)
		metrics.RegisteredPeers.Set(float64(len(r.peers)))
	}
}

// UnregisterConn releases whatever id conn registered, returning it.
// Idempotent; the bool is false when conn never registered.
func (r *Registry) UnregisterConn(conn types.PeerConn) (types.PeerIDType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.conns[conn]
	if !ok {
		return "", false
	}
	delete(r.peers, id)
	delete(r.conns, conn)
	metrics.RegisteredPeers.Set(float64(len(r.peers)))
	return id, true
}

// Lookup resolves id to its live connection.
func (r *Registry) Lookup(id types.PeerIDType) (types.PeerConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.peers[id]
	return conn, ok
}

// PeerIDOf is the reverse lookup used during disconnect cleanup.
func (r *Registry) PeerIDOf(conn types.PeerConn) (types.PeerIDType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.conns[conn]
	return id, ok
}

// Count returns the number of registered peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
