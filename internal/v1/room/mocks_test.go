package room

import (
	"sync"
	"testing"

	"github.com/airshift/studio/internal/v1/types"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockConn records every frame enqueued to it, in order.
type mockConn struct {
	id types.PeerIDType

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (m *mockConn) PeerID() types.PeerIDType { return m.id }

func (m *mockConn) Send(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
}

func (m *mockConn) SendPriority(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
}

func (m *mockConn) Close(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConn) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}

// mockRegistry implements types.ConnRegistry over a plain map.
type mockRegistry struct {
	mu    sync.Mutex
	conns map[types.PeerIDType]types.PeerConn
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{conns: make(map[types.PeerIDType]types.PeerConn)}
}

func (r *mockRegistry) add(conn *mockConn) *mockConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.id] = conn
	return conn
}

func (r *mockRegistry) remove(id types.PeerIDType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

func (r *mockRegistry) Lookup(id types.PeerIDType) (types.PeerConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}
