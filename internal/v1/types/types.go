package types

// --- Core Domain Types ---

// PeerIDType is the opaque, client-chosen identifier a connection registers.
// Uniqueness is enforced process-wide by the registry.
type PeerIDType string

// RoomIDType identifies a signaling room. Server-generated UUID-v4.
type RoomIDType string

// RoleType is a peer's declared position inside a room.
type RoleType string

// AuthorityType declares on whose behalf a mute was issued. The server
// transports it verbatim; enforcement is a client-side convention.
type AuthorityType string

const (
	RoleTypeHost  RoleType = "host"  // The broadcasting peer; at most one per room
	RoleTypeOps   RoleType = "ops"   // Production staff with producer authority
	RoleTypeGuest RoleType = "guest" // Everyone else
)

const (
	AuthorityProducer AuthorityType = "producer"
	AuthoritySelf     AuthorityType = "self"
)

// Valid reports whether the role is one of the three known roles.
func (r RoleType) Valid() bool {
	switch r {
	case RoleTypeHost, RoleTypeOps, RoleTypeGuest:
		return true
	}
	return false
}

// Valid reports whether the authority is a known value.
func (a AuthorityType) Valid() bool {
	return a == AuthorityProducer || a == AuthoritySelf
}

// --- Shared Interfaces ---

// PeerConn is the write side of a connected peer as seen by the registry,
// the room layer, and the relays. The transport layer owns the read side.
//
// Send and SendPriority enqueue a single pre-serialized frame and never block;
// Close tears the connection down exactly once. Rooms never hold a PeerConn,
// only PeerIDs, and resolve through a ConnRegistry at send time.
type PeerConn interface {
	PeerID() PeerIDType
	Send(data []byte)
	SendPriority(data []byte)
	Close(reason string)
}

// ConnRegistry resolves a registered peer id to its live connection.
type ConnRegistry interface {
	Lookup(id PeerIDType) (PeerConn, bool)
}
