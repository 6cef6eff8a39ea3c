package transport

import (
	"context"
	"sync"
	"time"

	"github.com/airshift/studio/internal/v1/logging"
	"github.com/airshift/studio/internal/v1/metrics"
	"github.com/airshift/studio/internal/v1/protocol"
	"github.com/airshift/studio/internal/v1/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single outbound write; a connection that cannot
	// accept a frame within it is closed.
	writeWait = 10 * time.Second

	// maxMessageSize bounds one inbound frame. Stream-chunk envelopes
	// dominate frame size.
	maxMessageSize = 1 << 20

	sendQueueDepth = 256
)

// Keep-alive cadence. pongWait is larger than one ping period and smaller
// than the sink retry cadence. Variables so tests can shorten them.
var (
	pongWait   = 45 * time.Second
	pingPeriod = 30 * time.Second
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

// sessionState is the per-connection protocol state machine:
// NEW → REGISTERED → IN_ROOM. Invalid messages never change state.
type sessionState int

const (
	stateNew sessionState = iota
	stateRegistered
	stateInRoom
)

// Client represents a single peer's connection. It implements
// types.PeerConn: the write side is owned exclusively by its writePump, and
// every producer (direct replies, broadcasts, relays) enqueues onto the same
// channels so frames are never interleaved.
type Client struct {
	conn wsConnection
	hub  *Hub

	mu          sync.RWMutex
	peerID      types.PeerIDType
	state       sessionState
	closed      bool
	closeReason string

	send         chan []byte // normal traffic (pong, stream status)
	prioritySend chan []byte // membership, signaling relays, errors
}

func newClient(conn wsConnection, hub *Hub) *Client {
	return &Client{
		conn:         conn,
		hub:          hub,
		send:         make(chan []byte, sendQueueDepth),
		prioritySend: make(chan []byte, sendQueueDepth),
	}
}

// PeerID returns the registered identity, or "" before registration.
func (c *Client) PeerID() types.PeerIDType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.peerID
}

// State returns the current session state.
func (c *Client) State() sessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setRegistered(id types.PeerIDType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerID = id
	c.state = stateRegistered
}

func (c *Client) setState(s sessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Send enqueues a normal-priority frame. Never blocks; a full queue drops the
// frame.
func (c *Client) Send(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send on closing client",
				zap.String("peer_id", string(c.PeerID())), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Client send queue full, dropping frame",
			zap.String("peer_id", string(c.PeerID())))
	}
}

// SendPriority enqueues a critical frame (membership, relay, error). A peer
// that cannot drain its priority queue is closed rather than allowed to miss
// membership frames.
func (c *Client) SendPriority(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from send on closing client",
				zap.String("peer_id", string(c.PeerID())), zap.Any("panic", r))
		}
	}()

	select {
	case c.prioritySend <- data:
	default:
		logging.Error(context.Background(), "Client priority queue blocked, closing connection",
			zap.String("peer_id", string(c.PeerID())))
		c.Close("write queue overflow")
	}
}

// SendError replies with a protocol error message. The connection stays open.
func (c *Client) SendError(message string) {
	c.SendPriority(protocol.ErrorMessage(message))
}

// Close tears the connection down exactly once. Closing the channels makes
// writePump send a close frame and close the socket, which unblocks readPump
// and triggers session cleanup.
func (c *Client) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeReason = reason
	c.mu.Unlock()

	close(c.send)
	close(c.prioritySend)
}

// readPump processes inbound frames strictly in arrival order on this single
// goroutine per connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		switch messageType {
		case websocket.TextMessage:
			c.hub.dispatch(c, data)
		case websocket.BinaryMessage:
			c.hub.handleBinaryChunk(c, data)
		}
	}
}

// writePump serializes all outbound writes and drives keep-alive pings.
// Priority frames drain ahead of normal ones.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		// Drain the priority queue before touching normal traffic.
		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				c.writeCloseFrame()
				return
			}
			if !c.write(message) {
				return
			}
			continue
		default:
		}

		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				c.writeCloseFrame()
				return
			}
			if !c.write(message) {
				return
			}
		case message, ok := <-c.send:
			if !ok {
				c.writeCloseFrame()
				return
			}
			if !c.write(message) {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message []byte) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		logging.Error(context.Background(), "error writing message",
			zap.String("peer_id", string(c.PeerID())), zap.Error(err))
		return false
	}
	return true
}

func (c *Client) writeCloseFrame() {
	c.mu.RLock()
	reason := c.closeReason
	c.mu.RUnlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

// streamNotifier adapts stream lifecycle callbacks onto the client's normal
// send queue.
type streamNotifier struct {
	c *Client
}

func (n streamNotifier) StreamStarted() {
	n.c.Send(protocol.StreamStarted())
}

func (n streamNotifier) StreamStopped() {
	n.c.Send(protocol.StreamStopped())
}

func (n streamNotifier) StreamReconnecting(attempt int, delay time.Duration) {
	n.c.Send(protocol.StreamReconnecting(attempt, delay))
}

func (n streamNotifier) StreamError(message string) {
	n.c.Send(protocol.StreamError(message))
}
