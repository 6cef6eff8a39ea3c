package protocol

import (
	"bytes"
	"fmt"

	"github.com/airshift/studio/internal/v1/types"
)

// Validators return nil for a valid message or the accumulated list of
// human-readable reasons. Checks are purely syntactic and origin-based; SDP
// and candidate contents pass through unmodified.

// ValidateRegister checks a register message.
func ValidateRegister(m *ClientMessage) []string {
	var reasons []string
	if m.PeerID == "" {
		reasons = append(reasons, "peerId must be a non-empty string")
	}
	return reasons
}

// ValidateRoomEntry checks create-room / join-room / create-or-join-room.
// join-room requires a roomId; the other two accept an absent one.
func ValidateRoomEntry(m *ClientMessage) []string {
	var reasons []string
	if m.Type == TypeJoinRoom && m.RoomID == "" {
		reasons = append(reasons, "roomId must be a non-empty string")
	}
	if m.Role != "" && !m.Role.Valid() {
		reasons = append(reasons, fmt.Sprintf("role %q must be one of host, ops, guest", m.Role))
	}
	return reasons
}

// ValidateSignal checks offer, answer, and ice-candidate messages, including
// the anti-spoof rule: from must equal the connection's registered peer id.
func ValidateSignal(m *ClientMessage, registered types.PeerIDType) []string {
	var reasons []string
	if m.From == "" {
		reasons = append(reasons, "from must be a non-empty string")
	}
	if m.To == "" {
		reasons = append(reasons, "to must be a non-empty string")
	}
	switch m.Type {
	case TypeOffer, TypeAnswer:
		if m.SDP == "" {
			reasons = append(reasons, "sdp must be a non-empty string")
		}
	case TypeICECandidate:
		if !isJSONObject(m.Candidate) {
			reasons = append(reasons, "candidate must be an object")
		}
	}
	if m.From != "" && types.PeerIDType(m.From) != registered {
		reasons = append(reasons, fmt.Sprintf("from %q must match registered peer id %q", m.From, registered))
	}
	return reasons
}

// ValidateMute checks a mute message.
func ValidateMute(m *ClientMessage, registered types.PeerIDType) []string {
	var reasons []string
	if m.From == "" {
		reasons = append(reasons, "from must be a non-empty string")
	} else if types.PeerIDType(m.From) != registered {
		reasons = append(reasons, fmt.Sprintf("from %q must match registered peer id %q", m.From, registered))
	}
	if m.PeerID == "" {
		reasons = append(reasons, "peerId must be a non-empty string")
	}
	if m.Muted == nil {
		reasons = append(reasons, "muted must be a boolean")
	}
	if !m.Authority.Valid() {
		reasons = append(reasons, fmt.Sprintf("authority %q must be one of producer, self", m.Authority))
	}
	return reasons
}

// ValidateStreamChunk checks a stream-chunk envelope.
func ValidateStreamChunk(m *ClientMessage) []string {
	var reasons []string
	if m.Chunk == "" {
		reasons = append(reasons, "chunk must be a non-empty base64 string")
	}
	return reasons
}

func isJSONObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
