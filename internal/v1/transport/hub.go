// Package transport owns the WebSocket endpoint: connection upgrade, the
// per-connection session loop, message dispatch, and graceful shutdown.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/airshift/studio/internal/v1/logging"
	"github.com/airshift/studio/internal/v1/metrics"
	"github.com/airshift/studio/internal/v1/protocol"
	"github.com/airshift/studio/internal/v1/registry"
	"github.com/airshift/studio/internal/v1/room"
	"github.com/airshift/studio/internal/v1/stream"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub coordinates every connection with the shared signaling state: the peer
// registry, the room manager, and the streaming relay. The shared components
// are created once at startup and passed in explicitly.
type Hub struct {
	registry *registry.Registry
	rooms    *room.Manager
	streams  *stream.Relay

	allowedOrigins []string // empty list allows any origin

	mu       sync.Mutex
	clients  map[*Client]struct{}
	draining bool // set by Shutdown; ServeWs refuses new upgrades
}

// NewHub creates a Hub with its dependencies.
func NewHub(reg *registry.Registry, rooms *room.Manager, streams *stream.Relay, allowedOrigins []string) *Hub {
	return &Hub{
		registry:       reg,
		rooms:          rooms,
		streams:        streams,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*Client]struct{}),
	}
}

// ServeWs upgrades an eligible request to a WebSocket session and starts the
// message pumps. Once Shutdown has begun, new upgrades are refused so no
// session can slip in behind the close pass.
func (h *Hub) ServeWs(c *gin.Context) {
	h.mu.Lock()
	draining := h.draining
	h.mu.Unlock()
	if draining {
		c.String(http.StatusServiceUnavailable, "server shutting down")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return
	}

	client := newClient(conn, h)

	h.mu.Lock()
	if h.draining {
		// Shutdown raced the upgrade; close immediately instead of tracking a
		// session the close pass has already missed.
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
}

// validateOrigin checks the request origin against the allowed list. An
// empty list allows any origin; a missing Origin header allows non-browser
// clients.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	if len(allowedOrigins) == 0 {
		return nil
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

// dispatch decodes one inbound text frame and routes it. Every failure is
// session-local: the sender gets an error reply and the connection stays
// open.
func (h *Hub) dispatch(c *Client, data []byte) {
	start := time.Now()

	msg, err := protocol.Parse(data)
	if err != nil {
		c.SendError("invalid message: " + err.Error())
		metrics.SignalingMessages.WithLabelValues("invalid", "rejected").Inc()
		return
	}

	// The metric label comes from client input, so unrecognized types collapse
	// to a fixed value to keep the label set bounded.
	msgLabel := string(msg.Type)

	var handleErr error
	switch msg.Type {
	case protocol.TypeRegister:
		handleErr = h.handleRegister(c, msg)
	case protocol.TypeCreateRoom, protocol.TypeJoinRoom, protocol.TypeCreateOrJoinRoom:
		handleErr = h.handleRoomEntry(c, msg)
	case protocol.TypeLeaveRoom:
		handleErr = h.handleLeaveRoom(c)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		handleErr = h.handleRelay(c, msg, data)
	case protocol.TypeMute:
		handleErr = h.handleMute(c, msg, data)
	case protocol.TypeStartStream:
		handleErr = h.handleStartStream(c)
	case protocol.TypeStreamChunk:
		handleErr = h.handleStreamChunk(c, msg)
	case protocol.TypeStopStream:
		handleErr = h.handleStopStream(c)
	case protocol.TypePing:
		handleErr = h.handlePing(c)
	default:
		msgLabel = "unknown"
		handleErr = fmt.Errorf("unknown message type %q", msg.Type)
	}

	status := "ok"
	if handleErr != nil {
		status = "rejected"
		c.SendError(handleErr.Error())
	}
	metrics.SignalingMessages.WithLabelValues(msgLabel, status).Inc()
	metrics.MessageHandlingDuration.WithLabelValues(msgLabel).Observe(time.Since(start).Seconds())
}

// handleBinaryChunk treats a binary frame as a raw audio chunk from a host
// with an active stream; the base64 envelope is optional on this channel.
func (h *Hub) handleBinaryChunk(c *Client, data []byte) {
	if c.State() != stateInRoom {
		c.SendError("unexpected binary frame")
		return
	}
	if err := h.streams.Push(c.PeerID(), data); err != nil {
		c.SendError("no active stream; send start-stream first")
	}
}

// handleDisconnect restores every invariant after a close, orderly or
// abrupt: registry binding, room membership (with peer-left broadcast), and
// any stream session owned by the connection.
func (h *Hub) handleDisconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	c.Close("")

	if id, ok := h.registry.UnregisterConn(c); ok {
		h.rooms.Leave(id)
		h.streams.Stop(id, false)
		logging.Info(context.Background(), "Peer disconnected", zap.String("peer_id", string(id)))
	}
}

// Shutdown closes every open connection with a shutdown status and waits,
// bounded by ctx, for session cleanup to finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	logging.Info(ctx, "Shutting down hub", zap.Int("connections", len(clients)))
	for _, c := range clients {
		c.Close("server shutting down")
	}

	if err := h.streams.Shutdown(ctx); err != nil {
		logging.Error(ctx, "Stream relay shutdown incomplete", zap.Error(err))
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		h.mu.Lock()
		remaining := len(h.clients)
		h.mu.Unlock()
		if remaining == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
