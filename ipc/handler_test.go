package ipc

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, mutate func(*Config)) (*Handler, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorfw.sock")
	cfg := Config{
		SocketPath: path,
		Logger:     testLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h := NewHandler(cfg)
	require.NoError(t, h.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = h.Stop(5 * time.Second)
	})
	return h, path
}

// dialSession connects and completes the handshake for the given id,
// verifying the channel marker on the way.
func dialSession(t *testing.T, path string, id int32) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)

	marker := make([]byte, len(channelMarker))
	_, err = io.ReadFull(conn, marker)
	require.NoError(t, err)
	require.Equal(t, channelMarker, marker)

	var idBuf [4]byte
	binary.NativeEndian.PutUint32(idBuf[:], uint32(id))
	_, err = conn.Write(idBuf[:])
	require.NoError(t, err)
	return conn
}

func readPayload(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestListenUnlinksStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	h := NewHandler(Config{SocketPath: path, Logger: testLogger(t)})
	require.NoError(t, h.Listen(), "one stale-socket unlink and retry must succeed")
	t.Cleanup(func() { _ = h.Stop(time.Second) })
}

func TestListenTwiceFails(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	assert.Error(t, h.Listen())
}

func TestHandshakeAndDelivery(t *testing.T) {
	h, path := newTestHandler(t, nil)

	conn := dialSession(t, path, 7)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.SessionCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	require.True(t, h.Write(7, []byte("sample-1")))
	assert.Equal(t, []byte("sample-1"), readPayload(t, conn, 8))

	// Raw payload bytes, no framing: consecutive writes arrive back to back.
	require.True(t, h.Write(7, []byte("sample-2")))
	assert.Equal(t, []byte("sample-2"), readPayload(t, conn, 8))
}

func TestHandshakeRejectsNegativeID(t *testing.T) {
	h, path := newTestHandler(t, nil)

	conn := dialSession(t, path, -1)
	defer conn.Close()

	// The server drops the connection and never registers a session.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, h.SessionCount())
	assert.False(t, h.Write(-1, []byte("never")))
}

func TestDuplicateHandshakeKeepsExistingMapping(t *testing.T) {
	h, path := newTestHandler(t, nil)

	first := dialSession(t, path, 3)
	defer first.Close()
	require.Eventually(t, func() bool { return h.SessionCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	second := dialSession(t, path, 3)
	defer second.Close()

	// The second handshake is ignored: its connection closes, the first
	// binding keeps receiving data.
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := second.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, 1, h.SessionCount())
	require.True(t, h.Write(3, []byte("ping")))
	assert.Equal(t, []byte("ping"), readPayload(t, first, 4))
}

func TestWriteUnknownSession(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	assert.False(t, h.Write(99, []byte("nobody home")))
}

func TestRemoveSession(t *testing.T) {
	h, path := newTestHandler(t, nil)

	conn := dialSession(t, path, 5)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.SessionCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	h.RemoveSession(5)
	assert.Equal(t, 0, h.SessionCount())
	assert.False(t, h.Write(5, []byte("gone")))

	// Removing an unknown session is a no-op.
	h.RemoveSession(5)
	h.RemoveSession(12345)
}

func TestSetIntervalUnknownSessionIgnored(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	h.SetInterval(42, 100) // must not panic or create state
	assert.Equal(t, 0, h.SessionCount())
}

func TestLostSessionCallback(t *testing.T) {
	var mu sync.Mutex
	var lost []int

	h, path := newTestHandler(t, func(cfg *Config) {
		cfg.LostSession = func(id int) {
			mu.Lock()
			defer mu.Unlock()
			lost = append(lost, id)
		}
	})

	conn := dialSession(t, path, 9)
	require.Eventually(t, func() bool { return h.SessionCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lost) == 1 && lost[0] == 9
	}, 2*time.Second, 5*time.Millisecond)

	// The owner decides on removal; until then the entry remains and a
	// write simply fails against the dead transport.
	h.RemoveSession(9)
	assert.Equal(t, 0, h.SessionCount())
}

func TestLostSessionHookRemovesEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensorfw.sock")

	// Wired the way the daemon wires it: a lost transport removes the
	// session entry outright.
	var h *Handler
	h = NewHandler(Config{
		SocketPath:  path,
		Logger:      testLogger(t),
		LostSession: func(id int) { h.RemoveSession(id) },
	})
	require.NoError(t, h.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = h.Stop(5 * time.Second)
	})

	conn := dialSession(t, path, 9)
	require.Eventually(t, func() bool { return h.SessionCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.SessionCount() == 0 },
		2*time.Second, 5*time.Millisecond)
	assert.False(t, h.Write(9, []byte("gone")))
}

func TestStopIdempotent(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.Stop(time.Second))
		}()
	}
	wg.Wait()
}

func TestHandshakeRateLimit(t *testing.T) {
	h, path := newTestHandler(t, func(cfg *Config) {
		cfg.HandshakeRate = 1
		cfg.HandshakeBurst = 1
	})

	first := dialSession(t, path, 1)
	defer first.Close()
	require.Eventually(t, func() bool { return h.SessionCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// The second connection inside the same window is dropped before the
	// channel marker is written.
	second, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = second.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, h.SessionCount())
}

func TestPassthroughDeliveryOverSocket(t *testing.T) {
	h, path := newTestHandler(t, nil)

	conn := dialSession(t, path, 2)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.SessionCount() == 1 },
		2*time.Second, 5*time.Millisecond)

	// No interval set: every write crosses the socket immediately.
	for _, payload := range []string{"aaaa", "bbbb", "cccc"} {
		require.True(t, h.Write(2, []byte(payload)))
		assert.Equal(t, []byte(payload), readPayload(t, conn, 4))
	}
}
