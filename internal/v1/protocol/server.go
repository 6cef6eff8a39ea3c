package protocol

import (
	"encoding/json"
	"time"

	"github.com/airshift/studio/internal/v1/types"
)

// serverMessage is the outbound envelope. Builders below serialize eagerly so
// a frame is marshaled once no matter how many recipients it has.
type serverMessage struct {
	Type         MessageType       `json:"type"`
	PeerID       types.PeerIDType  `json:"peerId,omitempty"`
	RoomID       types.RoomIDType  `json:"roomId,omitempty"`
	HostID       types.PeerIDType  `json:"hostId,omitempty"`
	Role         types.RoleType    `json:"role,omitempty"`
	Participants []ParticipantInfo `json:"participants,omitempty"`
	Message      string            `json:"message,omitempty"`
	Timestamp    int64             `json:"timestamp,omitempty"`
	Attempt      int               `json:"attempt,omitempty"`
	DelayMs      int64             `json:"delayMs,omitempty"`
}

func encode(v serverMessage) []byte {
	// serverMessage contains only marshalable field types; an error here is
	// unreachable short of memory corruption.
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"type":"error","message":"internal encoding failure"}`)
	}
	return data
}

// Registered confirms a successful register.
func Registered(peerID types.PeerIDType) []byte {
	return encode(serverMessage{Type: TypeRegistered, PeerID: peerID})
}

// RoomCreated is sent to the creator of a fresh room.
func RoomCreated(roomID types.RoomIDType, hostID types.PeerIDType, role types.RoleType) []byte {
	return encode(serverMessage{Type: TypeRoomCreated, RoomID: roomID, HostID: hostID, Role: role})
}

// RoomJoined is sent to a peer entering an existing room. Participants are in
// insertion order and include the joiner.
func RoomJoined(roomID types.RoomIDType, participants []ParticipantInfo, role types.RoleType) []byte {
	return encode(serverMessage{Type: TypeRoomJoined, RoomID: roomID, Participants: participants, Role: role})
}

// PeerJoined notifies existing members about a new arrival.
func PeerJoined(peerID types.PeerIDType, role types.RoleType) []byte {
	return encode(serverMessage{Type: TypePeerJoined, PeerID: peerID, Role: role})
}

// PeerLeft notifies remaining members about a departure.
func PeerLeft(peerID types.PeerIDType) []byte {
	return encode(serverMessage{Type: TypePeerLeft, PeerID: peerID})
}

// ErrorMessage is the reply for any session-local failure. It never implies
// the connection will be closed.
func ErrorMessage(message string) []byte {
	return encode(serverMessage{Type: TypeError, Message: message})
}

// Pong answers an application-level ping.
func Pong(now time.Time) []byte {
	return encode(serverMessage{Type: TypePong, Timestamp: now.UnixMilli()})
}

// StreamStarted tells the host the sink accepted the egress.
func StreamStarted() []byte {
	return encode(serverMessage{Type: TypeStreamStarted})
}

// StreamStopped tells the host the egress closed cleanly.
func StreamStopped() []byte {
	return encode(serverMessage{Type: TypeStreamStopped})
}

// StreamReconnecting tells the host a transient sink failure is being retried.
func StreamReconnecting(attempt int, delay time.Duration) []byte {
	return encode(serverMessage{Type: TypeStreamReconnecting, Attempt: attempt, DelayMs: delay.Milliseconds()})
}

// StreamError tells the host the egress failed terminally.
func StreamError(message string) []byte {
	return encode(serverMessage{Type: TypeStreamError, Message: message})
}
