package protocol

import (
	"encoding/json"
	"testing"

	"github.com/airshift/studio/internal/v1/types"
	"github.com/stretchr/testify/assert"
)

func boolPtr(b bool) *bool { return &b }

func TestValidateRegister(t *testing.T) {
	t.Run("should accept a non-empty peerId", func(t *testing.T) {
		assert.Empty(t, ValidateRegister(&ClientMessage{Type: TypeRegister, PeerID: "host-main"}))
	})

	t.Run("should reject an empty peerId", func(t *testing.T) {
		reasons := ValidateRegister(&ClientMessage{Type: TypeRegister})
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "peerId")
	})
}

func TestValidateRoomEntry(t *testing.T) {
	t.Run("join-room requires a roomId", func(t *testing.T) {
		reasons := ValidateRoomEntry(&ClientMessage{Type: TypeJoinRoom})
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "roomId")
	})

	t.Run("create-or-join-room accepts an absent roomId", func(t *testing.T) {
		assert.Empty(t, ValidateRoomEntry(&ClientMessage{Type: TypeCreateOrJoinRoom}))
	})

	t.Run("create-room accepts an absent roomId", func(t *testing.T) {
		assert.Empty(t, ValidateRoomEntry(&ClientMessage{Type: TypeCreateRoom}))
	})

	t.Run("should accept each known role", func(t *testing.T) {
		for _, role := range []types.RoleType{types.RoleTypeHost, types.RoleTypeOps, types.RoleTypeGuest} {
			assert.Empty(t, ValidateRoomEntry(&ClientMessage{Type: TypeCreateOrJoinRoom, Role: role}))
		}
	})

	t.Run("should reject an unknown role", func(t *testing.T) {
		reasons := ValidateRoomEntry(&ClientMessage{Type: TypeCreateOrJoinRoom, Role: "producer"})
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "role")
	})
}

func TestValidateSignal(t *testing.T) {
	candidate := json.RawMessage(`{"candidate":"candidate:1","sdpMid":"0"}`)

	t.Run("should accept a well-formed offer", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeOffer, From: "host-main", To: "guest-7", SDP: "v=0"}
		assert.Empty(t, ValidateSignal(msg, "host-main"))
	})

	t.Run("should accept a well-formed ice-candidate", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeICECandidate, From: "a", To: "b", Candidate: candidate}
		assert.Empty(t, ValidateSignal(msg, "a"))
	})

	t.Run("should reject a spoofed from", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeOffer, From: "someone-else", To: "guest-7", SDP: "v=0"}
		reasons := ValidateSignal(msg, "host-main")
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], `"someone-else" must match registered peer id "host-main"`)
	})

	t.Run("should require sdp on offer and answer", func(t *testing.T) {
		for _, typ := range []MessageType{TypeOffer, TypeAnswer} {
			msg := &ClientMessage{Type: typ, From: "a", To: "b"}
			reasons := ValidateSignal(msg, "a")
			assert.Len(t, reasons, 1, "type %s", typ)
			assert.Contains(t, reasons[0], "sdp")
		}
	})

	t.Run("should require candidate to be an object", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeICECandidate, From: "a", To: "b", Candidate: json.RawMessage(`"nope"`)}
		reasons := ValidateSignal(msg, "a")
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "candidate")
	})

	t.Run("should accumulate every failure", func(t *testing.T) {
		reasons := ValidateSignal(&ClientMessage{Type: TypeOffer}, "host-main")
		// missing from, missing to, missing sdp
		assert.Len(t, reasons, 3)
	})
}

func TestValidateMute(t *testing.T) {
	t.Run("should accept a producer mute", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeMute, From: "ops-1", PeerID: "guest-7", Muted: boolPtr(true), Authority: types.AuthorityProducer}
		assert.Empty(t, ValidateMute(msg, "ops-1"))
	})

	t.Run("should accept a self unmute", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeMute, From: "guest-7", PeerID: "guest-7", Muted: boolPtr(false), Authority: types.AuthoritySelf}
		assert.Empty(t, ValidateMute(msg, "guest-7"))
	})

	t.Run("should reject a spoofed from", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeMute, From: "ops-1", PeerID: "guest-7", Muted: boolPtr(true), Authority: types.AuthorityProducer}
		reasons := ValidateMute(msg, "guest-7")
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "must match registered peer id")
	})

	t.Run("should require muted to be present", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeMute, From: "ops-1", PeerID: "guest-7", Authority: types.AuthorityProducer}
		reasons := ValidateMute(msg, "ops-1")
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "muted")
	})

	t.Run("should reject an unknown authority", func(t *testing.T) {
		msg := &ClientMessage{Type: TypeMute, From: "ops-1", PeerID: "guest-7", Muted: boolPtr(true), Authority: "admin"}
		reasons := ValidateMute(msg, "ops-1")
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "authority")
	})
}

func TestValidateStreamChunk(t *testing.T) {
	t.Run("should accept a non-empty chunk", func(t *testing.T) {
		assert.Empty(t, ValidateStreamChunk(&ClientMessage{Type: TypeStreamChunk, Chunk: "AAAA"}))
	})

	t.Run("should reject an empty chunk", func(t *testing.T) {
		reasons := ValidateStreamChunk(&ClientMessage{Type: TypeStreamChunk})
		assert.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "chunk")
	})
}
