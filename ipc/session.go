package ipc

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/saukko/sensorfw/datatypes"
)

// Session holds the delivery state for one connected client: the transport
// handle, the client's chosen interval floor, and the single-slot pending
// buffer used for coalescing.
//
// The session mutex is the teardown gate: every socket write happens under
// it, and close marks the session dead and closes the transport under the
// same mutex, so no write or deferred flush ever touches a closed
// transport. Timer callbacks re-check the closed flag before writing.
type Session struct {
	mu         sync.Mutex
	conn       net.Conn
	clock      clock.Clock
	interval   time.Duration // negative when unset
	pending    []byte
	timer      clock.Timer
	timerArmed bool
	lastWrite  time.Time
	closed     bool

	logger  *slog.Logger
	metrics *Metrics
}

func newSession(conn net.Conn, clk clock.Clock, logger *slog.Logger, metrics *Metrics) *Session {
	return &Session{
		conn:     conn,
		clock:    clk,
		interval: -1,
		logger:   logger,
		metrics:  metrics,
	}
}

// write delivers the payload to the client, or coalesces it when the
// session's interval floor has not elapsed. Returns false when the session
// is closed or the socket write fails.
func (s *Session) write(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	if s.interval < 0 {
		s.logger.Debug("pass-through, interval not set")
		s.dropPendingLocked()
		return s.flushLocked(payload, "immediate")
	}

	elapsed := s.sinceLastWriteLocked()
	if elapsed >= s.interval {
		s.logger.Debug("pass-through, interval elapsed")
		s.dropPendingLocked()
		return s.flushLocked(payload, "immediate")
	}

	// Coalesce: only the newest sample survives the window.
	if s.pending != nil {
		s.metrics.recordCoalesced()
	}
	s.pending = append(s.pending[:0], payload...)
	if !s.timerArmed {
		delay := s.interval - elapsed
		s.timerArmed = true
		s.timer = s.clock.AfterFunc(delay, s.flushPending)
		s.logger.Debug("delayed write armed", "delay", delay)
	} else {
		s.logger.Debug("flush timer already running")
	}
	return true
}

// dropPendingLocked discards the coalesced payload and disarms the flush
// timer. An immediate delivery supersedes whatever was waiting; letting
// the timer deliver the older pending sample afterwards would reorder the
// stream.
func (s *Session) dropPendingLocked() {
	if s.pending != nil {
		s.metrics.recordCoalesced()
		s.pending = nil
	}
	if s.timerArmed {
		s.timer.Stop()
		s.timerArmed = false
	}
}

// flushPending is the deferred flush fired by the coalescing timer.
func (s *Session) flushPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timerArmed = false
	if s.closed || s.pending == nil {
		return
	}
	payload := s.pending
	s.pending = nil
	s.flushLocked(payload, "deferred")
}

func (s *Session) flushLocked(payload []byte, mode string) bool {
	s.lastWrite = s.clock.Now()
	start := s.clock.Now()
	n, err := s.conn.Write(payload)
	if err != nil {
		s.logger.Debug("socket write failed", "error", err)
		return false
	}
	s.metrics.recordWrite(mode, n, s.clock.Now().Sub(start).Seconds())
	return true
}

// sinceLastWriteLocked returns the time since the last delivery, or a
// duration larger than any interval when nothing was ever delivered.
func (s *Session) sinceLastWriteLocked() time.Duration {
	if s.lastWrite.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return s.clock.Now().Sub(s.lastWrite)
}

// setInterval sets the session's minimum time between deliveries in
// milliseconds. datatypes.IntervalUnset (or any negative value) clears the
// floor, restoring passthrough delivery.
func (s *Session) setInterval(ms int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms < 0 {
		s.interval = time.Duration(datatypes.IntervalUnset)
		// Passthrough from here on; a sample held back under the old
		// floor must not surface behind newer deliveries.
		s.dropPendingLocked()
		return
	}
	s.interval = time.Duration(ms) * time.Millisecond
}

// close marks the session dead, disarms any pending flush, and closes the
// transport. Safe to call more than once; a timer callback already in
// flight finds the closed flag and does nothing.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.dropPendingLocked()
	_ = s.conn.Close()
}
