// Package protocol defines the JSON wire protocol spoken over the signaling
// WebSocket: one UTF-8 JSON object per text frame, discriminated by "type".
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/airshift/studio/internal/v1/types"
)

// MessageType discriminates the tagged union carried in each frame.
type MessageType string

// Client → server message types.
const (
	TypeRegister         MessageType = "register"
	TypeCreateRoom       MessageType = "create-room" // legacy alias of create-or-join-room
	TypeJoinRoom         MessageType = "join-room"   // legacy alias of create-or-join-room
	TypeCreateOrJoinRoom MessageType = "create-or-join-room"
	TypeLeaveRoom        MessageType = "leave-room"
	TypeOffer            MessageType = "offer"
	TypeAnswer           MessageType = "answer"
	TypeICECandidate     MessageType = "ice-candidate"
	TypeMute             MessageType = "mute"
	TypeStartStream      MessageType = "start-stream"
	TypeStreamChunk      MessageType = "stream-chunk"
	TypeStopStream       MessageType = "stop-stream"
	TypePing             MessageType = "ping"
)

// Server → client message types.
const (
	TypeRegistered         MessageType = "registered"
	TypeRoomCreated        MessageType = "room-created"
	TypeRoomJoined         MessageType = "room-joined"
	TypePeerJoined         MessageType = "peer-joined"
	TypePeerLeft           MessageType = "peer-left"
	TypeError              MessageType = "error"
	TypePong               MessageType = "pong"
	TypeStreamStarted      MessageType = "stream-started"
	TypeStreamStopped      MessageType = "stream-stopped"
	TypeStreamReconnecting MessageType = "stream-reconnecting"
	TypeStreamError        MessageType = "stream-error"
)

// ClientMessage is the inbound envelope. All fields besides Type are
// optional at the JSON level; per-type validators decide which are required.
type ClientMessage struct {
	Type      MessageType         `json:"type"`
	PeerID    string              `json:"peerId,omitempty"`
	RoomID    string              `json:"roomId,omitempty"`
	Role      types.RoleType      `json:"role,omitempty"`
	From      string              `json:"from,omitempty"`
	To        string              `json:"to,omitempty"`
	SDP       string              `json:"sdp,omitempty"`
	Candidate json.RawMessage     `json:"candidate,omitempty"`
	Muted     *bool               `json:"muted,omitempty"`
	Authority types.AuthorityType `json:"authority,omitempty"`
	Chunk     string              `json:"chunk,omitempty"`
}

// ErrMissingType is returned by Parse when the frame has no "type" field.
var ErrMissingType = errors.New("message has no type field")

// Parse decodes a single inbound frame. A decode failure is a session-local
// error: the caller replies with an error message and keeps the connection.
func Parse(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON frame: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingType
	}
	return &msg, nil
}

// ParticipantInfo is the wire form of a room member, sent to joiners inside
// room-joined in insertion order.
type ParticipantInfo struct {
	PeerID   types.PeerIDType `json:"peerId"`
	Role     types.RoleType   `json:"role"`
	JoinedAt int64            `json:"joinedAt,omitempty"` // unix millis
}
