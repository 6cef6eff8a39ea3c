package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/airshift/studio/internal/v1/logging"
	"github.com/airshift/studio/internal/v1/metrics"
	"github.com/airshift/studio/internal/v1/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// permanentError marks a sink failure that retrying cannot fix (bad
// credentials, rejected mountpoint). It ends the session immediately.
type permanentError struct {
	msg string
}

func (e *permanentError) Error() string { return e.msg }

// Session is one host peer's egress to the sink. It owns a bounded chunk
// queue and a reconnect loop; the upload body is streamed through an io.Pipe
// so nothing is buffered beyond the queue.
type Session struct {
	relay  *Relay
	peerID types.PeerIDType
	notify Notifier

	queue chan []byte
	stop  chan struct{}
	done  chan struct{}

	drainFlag atomic.Bool
	stopped   atomic.Bool
}

// push enqueues one chunk, dropping the oldest queued chunk on overflow.
// Continuous audio tolerates drops better than stalls.
func (s *Session) push(chunk []byte) {
	select {
	case s.queue <- chunk:
		metrics.StreamChunks.Inc()
		return
	default:
	}

	select {
	case <-s.queue:
		metrics.StreamChunksDropped.Inc()
	default:
	}
	select {
	case s.queue <- chunk:
		metrics.StreamChunks.Inc()
	default:
	}
	logging.Warn(context.Background(), "Egress queue full, dropped oldest chunk",
		zap.String("peer_id", string(s.peerID)))
}

// shutdown requests the session end. Safe to call more than once.
func (s *Session) shutdown(drain bool) {
	if s.stopped.CompareAndSwap(false, true) {
		s.drainFlag.Store(drain)
		close(s.stop)
	}
}

// run drives the CONNECTING/ACTIVE loop until an orderly stop, a permanent
// failure, or retry exhaustion.
func (s *Session) run() {
	defer close(s.done)
	defer s.relay.clear(s)

	cfg := &s.relay.cfg

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialRetry
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = cfg.MaxRetryInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	attempt := 0
	for {
		eg, err := s.connect()
		if err == nil {
			attempt = 0
			bo.Reset()
			s.notify.StreamStarted()

			err = s.pump(eg)
			if err == nil {
				// Orderly stop.
				s.notify.StreamStopped()
				return
			}
		}

		if s.stopped.Load() {
			s.notify.StreamStopped()
			return
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			logging.Error(context.Background(), "Sink egress failed permanently",
				zap.String("peer_id", string(s.peerID)), zap.Error(err))
			s.notify.StreamError(perm.msg)
			return
		}

		attempt++
		metrics.StreamReconnects.Inc()
		if attempt > cfg.MaxAttempts {
			msg := fmt.Sprintf("sink unreachable after %d attempts", cfg.MaxAttempts)
			logging.Error(context.Background(), "Sink retries exhausted",
				zap.String("peer_id", string(s.peerID)), zap.Error(err))
			s.notify.StreamError(msg)
			return
		}

		delay := bo.NextBackOff()
		logging.Warn(context.Background(), "Sink egress interrupted, retrying",
			zap.String("peer_id", string(s.peerID)), zap.Int("attempt", attempt),
			zap.Duration("delay", delay), zap.Error(err))
		s.notify.StreamReconnecting(attempt, delay)

		select {
		case <-time.After(delay):
		case <-s.stop:
			s.notify.StreamStopped()
			return
		}
	}
}

// egress is one live PUT upload.
type egress struct {
	pw     *io.PipeWriter
	result chan dialResult
}

type dialResult struct {
	status int
	err    error
}

// connect establishes the upload through the circuit breaker. When the
// breaker is open the sink has been down through a full retry cycle and the
// session fails fast.
func (s *Session) connect() (*egress, error) {
	v, err := s.relay.cb.Execute(func() (any, error) {
		return s.dial()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &permanentError{msg: "sink unavailable (circuit open)"}
		}
		return nil, err
	}
	return v.(*egress), nil
}

// dial issues the PUT and waits one probe window for an immediate rejection.
// Sinks that accept the stream keep the request open until the body ends, so
// a silent probe window means the upload is live.
func (s *Session) dial() (*egress, error) {
	cfg := &s.relay.cfg

	pr, pw := io.Pipe()
	req, err := http.NewRequest(http.MethodPut, cfg.URL, pr)
	if err != nil {
		pw.Close()
		return nil, &permanentError{msg: fmt.Sprintf("invalid sink URL: %v", err)}
	}
	req.SetBasicAuth(cfg.Username, cfg.Password)
	req.Header.Set("Content-Type", cfg.ContentType)
	req.Header.Set("Ice-Name", cfg.StationName)
	req.Header.Set("Ice-Description", cfg.StationDescription)
	if cfg.Public {
		req.Header.Set("Ice-Public", "1")
	} else {
		req.Header.Set("Ice-Public", "0")
	}

	result := make(chan dialResult, 1)
	go func() {
		resp, err := s.relay.client.Do(req)
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		result <- dialResult{status: status, err: err}
	}()

	select {
	case res := <-result:
		pw.Close()
		if err := classify(res); err != nil {
			return nil, err
		}
		return nil, errors.New("sink closed the upload immediately")
	case <-time.After(cfg.ConnectProbe):
		return &egress{pw: pw, result: result}, nil
	}
}

// pump moves queued chunks onto the upload body until stop or failure.
// Returns nil on orderly stop.
func (s *Session) pump(eg *egress) error {
	for {
		select {
		case <-s.stop:
			if s.drainFlag.Load() {
				s.drain(eg)
			}
			eg.pw.Close()
			// Let the request wind down; best effort.
			select {
			case <-eg.result:
			case <-time.After(s.relay.cfg.DrainTimeout):
			}
			return nil

		case res := <-eg.result:
			// The sink ended the request while we were streaming.
			eg.pw.Close()
			err := classify(res)
			if err == nil {
				err = errors.New("sink closed the upload")
			}
			return err

		case chunk := <-s.queue:
			if _, err := eg.pw.Write(chunk); err != nil {
				return fmt.Errorf("sink write: %w", err)
			}
		}
	}
}

// drain flushes the chunks already queued at orderly stop.
func (s *Session) drain(eg *egress) {
	for {
		select {
		case chunk := <-s.queue:
			if _, err := eg.pw.Write(chunk); err != nil {
				return
			}
		default:
			return
		}
	}
}

// classify maps a finished request to a retry decision: auth and other 4xx
// failures are permanent, everything else (refused connection, 5xx, early
// close) is transient.
func classify(res dialResult) error {
	if res.err != nil {
		return fmt.Errorf("sink connection: %w", res.err)
	}
	switch {
	case res.status == http.StatusUnauthorized || res.status == http.StatusForbidden:
		return &permanentError{msg: fmt.Sprintf("sink rejected credentials (status %d)", res.status)}
	case res.status >= 200 && res.status < 300:
		return nil
	case res.status >= 500:
		return fmt.Errorf("sink returned status %d", res.status)
	default:
		return &permanentError{msg: fmt.Sprintf("sink rejected stream (status %d)", res.status)}
	}
}
