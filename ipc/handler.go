package ipc

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"golang.org/x/time/rate"

	"github.com/saukko/sensorfw/errors"
	"github.com/saukko/sensorfw/metric"
)

// channelMarker is written to every accepted connection before any session
// binding, so the client library can recognize the channel type. The
// 16 bytes are the literal name with a trailing NUL.
var channelMarker = []byte("_SENSORCHANNEL_\x00")

// Config holds construction parameters for a Handler.
type Config struct {
	// SocketPath is the local endpoint to bind.
	SocketPath string

	// HandshakeRate limits accepted handshakes per second; zero disables
	// the guard. Connections over the limit are closed before the channel
	// marker is written.
	HandshakeRate  float64
	HandshakeBurst int

	// LostSession is invoked when a session's transport disconnects, so
	// the control plane can release any node metadata requests the
	// session held. Called from the connection's reader goroutine.
	LostSession func(sessionID int)

	// Clock defaults to the wall clock; tests inject a fake.
	Clock clock.Clock

	Logger   *slog.Logger
	Registry *metric.Registry
}

// Handler owns the listening endpoint and the session table. Sample
// producers call Write to push payloads toward clients; the control plane
// calls SetInterval and RemoveSession as clients adjust or drop their
// bindings.
type Handler struct {
	mu       sync.Mutex
	listener net.Listener
	sessions map[int]*Session

	path        string
	lostSession func(sessionID int)
	limiter     *rate.Limiter
	clock       clock.Clock
	logger      *slog.Logger
	metrics     *Metrics

	running      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewHandler creates a session handler. Call Listen and Start before
// pushing samples.
func NewHandler(cfg Config) *Handler {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.HandshakeRate > 0 {
		burst := cfg.HandshakeBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.HandshakeRate), burst)
	}
	return &Handler{
		sessions:    make(map[int]*Session),
		path:        cfg.SocketPath,
		lostSession: cfg.LostSession,
		limiter:     limiter,
		clock:       clk,
		logger:      logger.With("component", "ipc"),
		metrics:     newMetrics(cfg.Registry),
		shutdown:    make(chan struct{}),
	}
}

// Listen binds the local endpoint. When the bind fails and the endpoint is
// a filesystem path, exactly one stale-socket unlink and retry is
// attempted before giving up; there is no retry loop. The caller decides
// any further retry policy.
func (h *Handler) Listen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return errors.WrapInvalid(errors.ErrAlreadyListening, "Handler", "Listen", "bind local socket")
	}

	ln, err := net.Listen("unix", h.path)
	if err != nil && strings.HasPrefix(h.path, "/") {
		if rmErr := os.Remove(h.path); rmErr == nil {
			h.logger.Debug("unlinked stale socket", "path", h.path)
			ln, err = net.Listen("unix", h.path)
		} else {
			h.logger.Debug("stale socket unlink failed", "path", h.path, "error", rmErr)
		}
	}
	if err != nil {
		return errors.WrapTransient(err, "Handler", "Listen",
			fmt.Sprintf("bind local socket %s", h.path))
	}
	h.listener = ln
	h.logger.Info("listening", "path", h.path)
	return nil
}

// Start launches the accept loop. The context cancels the listener; live
// sessions are torn down by Stop.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	ln := h.listener
	h.mu.Unlock()
	if ln == nil {
		return errors.WrapInvalid(errors.ErrNotListening, "Handler", "Start", "accept loop startup")
	}
	if !h.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(fmt.Errorf("handler already started"), "Handler", "Start", "state check")
	}

	h.wg.Add(1)
	go h.acceptLoop(ln)
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-h.shutdown:
		}
	}()
	return nil
}

// Stop closes the listener and every session, then waits for connection
// goroutines up to the timeout.
func (h *Handler) Stop(timeout time.Duration) error {
	h.mu.Lock()
	ln := h.listener
	h.listener = nil
	sessions := h.sessions
	h.sessions = make(map[int]*Session)
	h.mu.Unlock()

	h.shutdownOnce.Do(func() { close(h.shutdown) })
	if ln != nil {
		_ = ln.Close()
	}
	for _, s := range sessions {
		s.close()
	}
	h.metrics.recordSessionCount(-float64(len(sessions)))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("timed out after %s", timeout),
			"Handler", "Stop", "waiting for connection goroutines")
	}
}

func (h *Handler) acceptLoop(ln net.Listener) {
	defer h.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) {
				return
			}
			h.logger.Warn("accept failed", "error", err)
			continue
		}
		h.wg.Add(1)
		go h.handleConn(conn)
	}
}

// handleConn runs the handshake for one anonymous connection: write the
// channel marker, read the 4-byte native-endian session id, and promote
// the connection to a registered session. A negative id is a malformed
// handshake; the connection is dropped and the table left unchanged.
func (h *Handler) handleConn(conn net.Conn) {
	defer h.wg.Done()
	logger := h.logger.With("conn_id", uuid.NewString())

	if h.limiter != nil && !h.limiter.Allow() {
		logger.Warn("handshake rate limit exceeded, dropping connection")
		h.metrics.recordHandshakeFailure("rate_limited")
		_ = conn.Close()
		return
	}

	if _, err := conn.Write(channelMarker); err != nil {
		logger.Debug("channel marker write failed", "error", err)
		h.metrics.recordHandshakeFailure("marker_write")
		_ = conn.Close()
		return
	}

	var idBuf [4]byte
	if _, err := io.ReadFull(conn, idBuf[:]); err != nil {
		logger.Debug("connection closed before handshake", "error", err)
		h.metrics.recordHandshakeFailure("short_read")
		_ = conn.Close()
		return
	}
	id := int32(binary.NativeEndian.Uint32(idBuf[:]))
	if id < 0 {
		logger.Warn("malformed handshake, negative session id", "session_id", id)
		h.metrics.recordHandshakeFailure("negative_id")
		_ = conn.Close()
		return
	}

	h.register(int(id), conn, logger)
}

func (h *Handler) register(id int, conn net.Conn, logger *slog.Logger) {
	h.mu.Lock()
	if _, exists := h.sessions[id]; exists {
		h.mu.Unlock()
		// Second handshake for a bound id: keep the existing mapping.
		logger.Debug("session already registered, ignoring handshake", "session_id", id)
		_ = conn.Close()
		return
	}
	s := newSession(conn, h.clock, logger.With("session_id", id), h.metrics)
	h.sessions[id] = s
	h.mu.Unlock()

	h.metrics.recordSessionCount(1)
	logger.Debug("session registered", "session_id", id)

	h.wg.Add(1)
	go h.watchDisconnect(conn)
}

// watchDisconnect blocks on the connection until the transport signals
// disconnection. The session is located by transport identity, not by a
// stored id, and the lost-session hook tells the owner to release whatever
// node requests the session held.
func (h *Handler) watchDisconnect(conn net.Conn) {
	defer h.wg.Done()
	buf := make([]byte, 64)
	for {
		// Clients send nothing after the handshake; drain until error.
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}

	h.mu.Lock()
	id := -1
	for sid, s := range h.sessions {
		if s.conn == conn {
			id = sid
			break
		}
	}
	h.mu.Unlock()

	if id == -1 {
		// Already removed; routine during teardown.
		h.logger.Debug("disconnect on connection with no session")
		return
	}

	h.logger.Info("lost session", "session_id", id)
	h.metrics.recordSessionLost()
	if h.lostSession != nil {
		h.lostSession(id)
	}
}

// Write delivers the payload to the given session, applying the session's
// rate policy. Returns false when the session is unknown or the transport
// write fails; both are routine during disconnect races, never an error.
func (h *Handler) Write(sessionID int, payload []byte) bool {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		h.logger.Debug("write to nonexistent session (normal, no panic)", "session_id", sessionID)
		h.metrics.recordUnknownWrite()
		return false
	}
	return s.write(payload)
}

// SetInterval sets or clears (ms < 0) the session's delivery floor in
// milliseconds. Unknown session ids are ignored.
func (h *Handler) SetInterval(sessionID, ms int) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	h.mu.Unlock()
	if !ok {
		return
	}
	s.setInterval(ms)
}

// RemoveSession tears the session entry down outright, closing its
// transport. Removing an unknown id is a no-op. Callers wanting
// passthrough delivery should clear the interval instead of removing the
// session.
func (h *Handler) RemoveSession(sessionID int) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
	}
	h.mu.Unlock()
	if !ok {
		h.logger.Debug("removing nonexistent session", "session_id", sessionID)
		return
	}
	s.close()
	h.metrics.recordSessionCount(-1)
}

// SessionCount returns the number of registered sessions.
func (h *Handler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
