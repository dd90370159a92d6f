package services

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for use by the keep-alive goroutine and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

// TestSocketWriter tests the wire encoding of the three send operations.
func TestSocketWriter(t *testing.T) {
	var out syncBuffer
	w := newSocketWriter(&out, nil, zerolog.Nop())

	require.NoError(t, w.SendFrame("raw"))
	require.NoError(t, w.SendData("Server", "AckPassing", "12"))
	require.NoError(t, w.SendObject(map[string]string{"b": "2", "a": "1"}))

	assert.Equal(t, "raw$Server@AckPassing@12@$a=1$b=2$", out.String())
}

// TestConnection_KeepAlive tests periodic pings and that Close stops them exactly once.
func TestConnection_KeepAlive(t *testing.T) {
	var out syncBuffer
	closer := &closeCounter{}
	c := newConnection("conn-1", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000},
		newSocketWriter(&out, nil, zerolog.Nop()), closer,
		ConnectionSettings{KeepAliveInterval: 5 * time.Millisecond}, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		c.runKeepAlive(context.Background())
		close(done)
	}()

	ping := constants.ServerName + "@Ping@$"
	assert.Eventually(t, func() bool {
		return bytes.Count([]byte(out.String()), []byte(ping)) >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keep-alive loop did not stop")
	}
	assert.Equal(t, 1, closer.closed)
}

// TestConnection_Snapshot tests the read-only view of a connection.
func TestConnection_Snapshot(t *testing.T) {
	c := newTestConnection(&recordingWriter{})
	c.setUserID("Toolkit")
	c.upsertLocation("Start", nil, time.Now())

	info := c.Snapshot()

	assert.Equal(t, "conn-1", info.ID)
	assert.Equal(t, "Toolkit", info.UserID)
	assert.Equal(t, "192.168.1.20", info.SourceIP)
	assert.Equal(t, 50123, info.SourcePort)
	assert.False(t, info.Identified)
	assert.Equal(t, []string{"Start"}, info.Locations)
}
