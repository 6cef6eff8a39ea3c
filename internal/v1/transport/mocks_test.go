package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/airshift/studio/internal/v1/registry"
	"github.com/airshift/studio/internal/v1/room"
	"github.com/airshift/studio/internal/v1/stream"
	"github.com/stretchr/testify/require"
)

var errConnClosed = errors.New("mock connection closed")

type inboundFrame struct {
	messageType int
	data        []byte
}

// mockWsConn implements wsConnection. ReadMessage blocks on an inbound frame
// queue until the connection is closed; writes are recorded in order.
type mockWsConn struct {
	inbound chan inboundFrame

	mu      sync.Mutex
	written [][]byte

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newMockWsConn() *mockWsConn {
	return &mockWsConn{
		inbound: make(chan inboundFrame, 16),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWsConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-m.inbound:
		return f.messageType, f.data, nil
	case <-m.closeCh:
		return 0, nil, errConnClosed
	}
}

func (m *mockWsConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, data)
	return nil
}

func (m *mockWsConn) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockWsConn) SetWriteDeadline(t time.Time) error          { return nil }
func (m *mockWsConn) SetReadDeadline(t time.Time) error           { return nil }
func (m *mockWsConn) SetReadLimit(limit int64)                    {}
func (m *mockWsConn) SetPongHandler(h func(appData string) error) {}

// newTestHub builds a Hub with real dependencies and no streaming sink.
func newTestHub() *Hub {
	reg := registry.New()
	return NewHub(reg, room.NewManager(reg), stream.NewRelay(nil), nil)
}

// newTestHubWithSink builds a Hub backed by the given sink config.
func newTestHubWithSink(cfg *stream.Config) *Hub {
	reg := registry.New()
	return NewHub(reg, room.NewManager(reg), stream.NewRelay(cfg), nil)
}

// newTestClient attaches a fresh client without running its pumps; tests feed
// dispatch directly and read the outbound queues.
func newTestClient(h *Hub) *Client {
	c := newClient(newMockWsConn(), h)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// recvPriority pops the next priority frame, failing after a timeout.
func recvPriority(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.prioritySend:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a priority frame")
		return nil
	}
}

// recvNormal pops the next normal-priority frame, failing after a timeout.
func recvNormal(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.send:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func decodeFrame(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// register drives a client through registration and asserts success.
func register(t *testing.T, h *Hub, c *Client, peerID string) {
	t.Helper()
	h.dispatch(c, []byte(`{"type":"register","peerId":"`+peerID+`"}`))
	frame := decodeFrame(t, recvPriority(t, c))
	require.Equal(t, "registered", frame["type"])
	require.Equal(t, peerID, frame["peerId"])
}

// createRoom drives a registered client into a fresh room and returns its id.
func createRoom(t *testing.T, h *Hub, c *Client) string {
	t.Helper()
	h.dispatch(c, []byte(`{"type":"create-or-join-room"}`))
	frame := decodeFrame(t, recvPriority(t, c))
	require.Equal(t, "room-created", frame["type"])
	roomID, ok := frame["roomId"].(string)
	require.True(t, ok)
	return roomID
}

// testSinkConfig returns a sink config with intervals short enough for tests.
func testSinkConfig(url string) *stream.Config {
	return &stream.Config{
		URL:          url,
		Username:     "source",
		Password:     "hackme",
		ConnectProbe: 150 * time.Millisecond,
		InitialRetry: 10 * time.Millisecond,
		MaxAttempts:  2,
		DrainTimeout: time.Second,
	}
}

// captureSink is an HTTP sink that accepts the upload and records the body.
type captureSink struct {
	mu   sync.Mutex
	body []byte
	done chan struct{}
}

func newCaptureSink() (*captureSink, *httptest.Server) {
	s := &captureSink{done: make(chan struct{})}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.body = data
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		close(s.done)
	}))
	return s, srv
}

func (s *captureSink) received() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.body
}

// joinRoom drives a registered client into an existing room.
func joinRoom(t *testing.T, h *Hub, c *Client, roomID string) {
	t.Helper()
	h.dispatch(c, []byte(`{"type":"create-or-join-room","roomId":"`+roomID+`"}`))
	frame := decodeFrame(t, recvPriority(t, c))
	require.Equal(t, "room-joined", frame["type"])
	require.Equal(t, roomID, frame["roomId"])
}
