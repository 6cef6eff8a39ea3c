package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airshift/studio/internal/v1/logging"
	"github.com/airshift/studio/internal/v1/protocol"
	"github.com/airshift/studio/internal/v1/registry"
	"github.com/airshift/studio/internal/v1/room"
	"github.com/airshift/studio/internal/v1/stream"
	"github.com/airshift/studio/internal/v1/types"
	"go.uber.org/zap"
)

// Handlers return nil on success or the error to reply with. State never
// changes on a rejected message.

func (h *Hub) handleRegister(c *Client, msg *protocol.ClientMessage) error {
	if c.State() != stateNew {
		return fmt.Errorf("already registered as %q", c.PeerID())
	}
	if reasons := protocol.ValidateRegister(msg); len(reasons) > 0 {
		return errors.New(strings.Join(reasons, "; "))
	}

	id := types.PeerIDType(msg.PeerID)
	if err := h.registry.Register(id, c); err != nil {
		if errors.Is(err, registry.ErrPeerIDTaken) {
			return fmt.Errorf("peer id %q is already taken", msg.PeerID)
		}
		return err
	}

	c.setRegistered(id)
	c.SendPriority(protocol.Registered(id))
	logging.Info(context.Background(), "Peer registered", zap.String("peer_id", msg.PeerID))
	return nil
}

func (h *Hub) handleRoomEntry(c *Client, msg *protocol.ClientMessage) error {
	switch c.State() {
	case stateNew:
		return errors.New("register before joining a room")
	case stateInRoom:
		return errors.New("already in a room; leave first")
	}
	if reasons := protocol.ValidateRoomEntry(msg); len(reasons) > 0 {
		return errors.New(strings.Join(reasons, "; "))
	}

	peerID := c.PeerID()
	var (
		entry *room.Entry
		err   error
	)
	switch msg.Type {
	case protocol.TypeJoinRoom:
		// Legacy strict join: the room must exist.
		entry, err = h.rooms.Join(peerID, types.RoomIDType(msg.RoomID), msg.Role)
	case protocol.TypeCreateRoom:
		// Legacy create: always a fresh room.
		entry, err = h.rooms.CreateOrJoin(peerID, "", msg.Role)
	default:
		entry, err = h.rooms.CreateOrJoin(peerID, types.RoomIDType(msg.RoomID), msg.Role)
	}
	if err != nil {
		switch {
		case errors.Is(err, room.ErrAlreadyInRoom):
			return errors.New("already in a room; leave first")
		case errors.Is(err, room.ErrRoomNotFound):
			return fmt.Errorf("room %q not found", msg.RoomID)
		}
		return err
	}

	c.setState(stateInRoom)
	if entry.Created {
		hostID, _ := entry.Room.HostID()
		c.SendPriority(protocol.RoomCreated(entry.RoomID, hostID, entry.Role))
	} else {
		c.SendPriority(protocol.RoomJoined(entry.RoomID, entry.Participants, entry.Role))
	}
	return nil
}

func (h *Hub) handleLeaveRoom(c *Client) error {
	if c.State() != stateInRoom {
		// Leaving with no membership is a no-op.
		return nil
	}

	peerID := c.PeerID()
	h.streams.Stop(peerID, true)
	h.rooms.Leave(peerID)
	c.setState(stateRegistered)
	return nil
}

func (h *Hub) handleRelay(c *Client, msg *protocol.ClientMessage, raw []byte) error {
	if c.State() != stateInRoom {
		return errors.New("join a room before sending signaling messages")
	}
	if reasons := protocol.ValidateSignal(msg, c.PeerID()); len(reasons) > 0 {
		return errors.New(strings.Join(reasons, "; "))
	}

	target, ok := h.registry.Lookup(types.PeerIDType(msg.To))
	if !ok {
		return fmt.Errorf("Target peer %q is not connected", msg.To)
	}

	// The relay is scoped to the sender's room. A connected peer in another
	// room is as unreachable as a disconnected one.
	r, ok := h.rooms.RoomOf(c.PeerID())
	if !ok {
		return errors.New("not in a room")
	}
	if !r.Contains(types.PeerIDType(msg.To)) {
		return fmt.Errorf("Target peer %q is not in your room", msg.To)
	}

	// Forward the original frame verbatim. No buffering, no retry: a write
	// failure surfaces as the target's own disconnect.
	target.SendPriority(raw)
	return nil
}

func (h *Hub) handleMute(c *Client, msg *protocol.ClientMessage, raw []byte) error {
	if c.State() != stateInRoom {
		return errors.New("join a room before sending signaling messages")
	}
	if reasons := protocol.ValidateMute(msg, c.PeerID()); len(reasons) > 0 {
		return errors.New(strings.Join(reasons, "; "))
	}

	// Mute is room-scoped: every other member updates its UI and resolves
	// conflicts locally.
	r, ok := h.rooms.RoomOf(c.PeerID())
	if !ok {
		return errors.New("not in a room")
	}
	r.Broadcast(raw, c.PeerID())
	return nil
}

func (h *Hub) handleStartStream(c *Client) error {
	if c.State() != stateInRoom {
		return errors.New("join a room before streaming")
	}

	peerID := c.PeerID()
	r, ok := h.rooms.RoomOf(peerID)
	if !ok {
		return errors.New("not in a room")
	}
	if role, _ := r.RoleOf(peerID); role != types.RoleTypeHost {
		return errors.New("only the room host may start a stream")
	}

	err := h.streams.Start(peerID, streamNotifier{c: c})
	switch {
	case errors.Is(err, stream.ErrNoSink):
		return errors.New("no streaming sink configured")
	case errors.Is(err, stream.ErrStreamActive):
		return errors.New("a stream is already active")
	}
	return err
}

func (h *Hub) handleStreamChunk(c *Client, msg *protocol.ClientMessage) error {
	if c.State() != stateInRoom {
		return errors.New("join a room before streaming")
	}
	if reasons := protocol.ValidateStreamChunk(msg); len(reasons) > 0 {
		return errors.New(strings.Join(reasons, "; "))
	}

	chunk, err := base64.StdEncoding.DecodeString(msg.Chunk)
	if err != nil {
		return errors.New("chunk is not valid base64")
	}

	if err := h.streams.Push(c.PeerID(), chunk); err != nil {
		return errors.New("no active stream; send start-stream first")
	}
	return nil
}

func (h *Hub) handleStopStream(c *Client) error {
	if !h.streams.Stop(c.PeerID(), true) {
		return errors.New("no active stream")
	}
	return nil
}

func (h *Hub) handlePing(c *Client) error {
	c.Send(protocol.Pong(time.Now()))
	return nil
}
