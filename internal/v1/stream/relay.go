// Package stream forwards a host peer's encoded audio to an external
// shoutcast-style HTTP sink as one long-lived PUT upload.
package stream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/airshift/studio/internal/v1/logging"
	"github.com/airshift/studio/internal/v1/metrics"
	"github.com/airshift/studio/internal/v1/types"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrNoSink means the station manifest configures no streaming sink.
	ErrNoSink = errors.New("no streaming sink configured")

	// ErrStreamActive means the sink mountpoint already has a live stream.
	ErrStreamActive = errors.New("a stream is already active")

	// ErrNoStream means the peer has no active stream session.
	ErrNoStream = errors.New("no active stream for this peer")
)

// Notifier receives stream lifecycle updates destined for the host peer.
// Implementations must not block.
type Notifier interface {
	StreamStarted()
	StreamStopped()
	StreamReconnecting(attempt int, delay time.Duration)
	StreamError(message string)
}

// Config describes the sink egress. Zero durations and counts take defaults.
type Config struct {
	URL         string
	Username    string
	Password    string
	ContentType string

	// Informational headers for the sink's directory listing.
	StationName        string
	StationDescription string
	Public             bool

	QueueDepth       int           // bounded chunk queue, drop-oldest (default 64)
	ConnectProbe     time.Duration // window to catch an immediate sink rejection (default 250ms)
	InitialRetry     time.Duration // default 5s
	MaxRetryInterval time.Duration // default 60s
	MaxAttempts      int           // default 10
	DrainTimeout     time.Duration // orderly-stop queue drain bound (default 2s)
}

func (c *Config) withDefaults() {
	if c.ContentType == "" {
		c.ContentType = "audio/webm"
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.ConnectProbe <= 0 {
		c.ConnectProbe = 250 * time.Millisecond
	}
	if c.InitialRetry <= 0 {
		c.InitialRetry = 5 * time.Second
	}
	if c.MaxRetryInterval <= 0 {
		c.MaxRetryInterval = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 2 * time.Second
	}
}

// Relay is the process-wide streaming table. The station has a single sink
// mountpoint, so at most one session is active at a time; a second
// start-stream while one is ACTIVE is rejected.
type Relay struct {
	cfg    Config
	client *http.Client
	cb     *gobreaker.CircuitBreaker

	mu     sync.Mutex
	active *Session
}

// NewRelay creates a Relay for the given sink. A nil config means no sink is
// configured; Start then fails with ErrNoSink.
func NewRelay(cfg *Config) *Relay {
	r := &Relay{
		// Long-lived upload: the client must not enforce an overall timeout.
		client: &http.Client{},
	}
	if cfg != nil {
		r.cfg = *cfg
		r.cfg.withDefaults()
	}

	st := gobreaker.Settings{
		Name:        "sink",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Open only after a full retry cycle has burned through, so the
			// in-session backoff schedule always runs to completion first.
			return counts.ConsecutiveFailures > uint32(r.cfg.MaxAttempts+1)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
			logging.Warn(context.Background(), "Sink circuit breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	r.cb = gobreaker.NewCircuitBreaker(st)
	return r
}

// Configured reports whether a sink is available.
func (r *Relay) Configured() bool {
	return r.cfg.URL != ""
}

// Start opens an egress session owned by peerID. The connection to the sink
// proceeds asynchronously; the host is informed through notify.
func (r *Relay) Start(peerID types.PeerIDType, notify Notifier) error {
	if !r.Configured() {
		return ErrNoSink
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return ErrStreamActive
	}

	s := &Session{
		relay:  r,
		peerID: peerID,
		notify: notify,
		queue:  make(chan []byte, r.cfg.QueueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.active = s

	logging.Info(context.Background(), "Stream session starting",
		zap.String("peer_id", string(peerID)), zap.String("sink", r.cfg.URL))
	go s.run()
	return nil
}

// Push enqueues one decoded audio chunk onto peerID's egress queue.
func (r *Relay) Push(peerID types.PeerIDType, chunk []byte) error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()

	if s == nil || s.peerID != peerID {
		return ErrNoStream
	}
	s.push(chunk)
	return nil
}

// Stop ends peerID's session. With drain=true (orderly stop-stream) queued
// chunks are flushed before the upload closes; with drain=false (abrupt
// disconnect) the egress is aborted. Returns false if the peer owns no
// session.
func (r *Relay) Stop(peerID types.PeerIDType, drain bool) bool {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()

	if s == nil || s.peerID != peerID {
		return false
	}
	s.shutdown(drain)
	return true
}

// Owner returns the peer owning the active session, if any.
func (r *Relay) Owner() (types.PeerIDType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return "", false
	}
	return r.active.peerID, true
}

// Shutdown aborts the active session and waits for it to finish, bounded by
// ctx.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	s.shutdown(false)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clear removes a finished session from the table.
func (r *Relay) clear(s *Session) {
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
}
