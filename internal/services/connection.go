package services

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/racemap/mylaps-forwarder/internal/mylaps"
	"github.com/racemap/mylaps-forwarder/internal/traffic"
	"github.com/racemap/mylaps-forwarder/internal/utils"
	"github.com/rs/zerolog"
)

// FrameWriter sends frames to a timing client.
type FrameWriter interface {
	// SendFrame writes text followed by the frame terminator.
	SendFrame(text string) error
	// SendData writes fields, each followed by the field separator, as one frame.
	SendData(fields ...string) error
	// SendObject writes one key=value frame per entry, ordered by key.
	SendObject(object map[string]string) error
}

// ConnectionSettings holds the per-connection tuning of the forwarder.
type ConnectionSettings struct {
	KeepAliveInterval     time.Duration
	StaleBufferThreshold  time.Duration
	MaxBufferSize         int
	ReceivedFramesHistory int
}

// socketWriter is the FrameWriter of a live connection. Writes from the reader
// and the keep-alive goroutine are serialized by mu.
type socketWriter struct {
	w        io.Writer
	recorder *traffic.Recorder
	logger   zerolog.Logger
	mu       sync.Mutex
}

func newSocketWriter(w io.Writer, recorder *traffic.Recorder, logger zerolog.Logger) *socketWriter {
	return &socketWriter{w: w, recorder: recorder, logger: logger}
}

func (s *socketWriter) SendFrame(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Debug().Str("frame", text).Msg("Sending frame")
	s.recorder.Record(traffic.ToClient, text)
	if _, err := io.WriteString(s.w, text+mylaps.FrameTerminator); err != nil {
		return fmt.Errorf("failed to send frame: %w", err)
	}
	return nil
}

func (s *socketWriter) SendData(fields ...string) error {
	return s.SendFrame(mylaps.EncodeFields(fields...))
}

func (s *socketWriter) SendObject(object map[string]string) error {
	for _, key := range utils.SortedKeys(object) {
		if err := s.SendFrame(key + mylaps.KeyValueSeparator + object[key]); err != nil {
			return err
		}
	}
	return nil
}

// Connection is one timing client. Its protocol state is only changed by the
// goroutine reading the socket; snapshots may be taken from anywhere.
type Connection struct {
	id         string
	remoteIP   string
	remotePort int
	openedAt   time.Time
	writer     FrameWriter
	buffer     *mylaps.FrameBuffer
	keepAlive  time.Duration
	logger     zerolog.Logger
	closer     io.Closer

	mu              sync.RWMutex
	identified      bool
	protocolVersion *semver.Version
	userID          string
	locations       map[string]*models.Location
	received        *utils.Ring[string]

	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(id string, remote net.Addr, writer FrameWriter, closer io.Closer, settings ConnectionSettings, logger zerolog.Logger) *Connection {
	ip, port := splitRemoteAddr(remote)
	logger = logger.With().Str("conn_id", id).Str("remote", net.JoinHostPort(ip, fmt.Sprint(port))).Logger()
	return &Connection{
		id:         id,
		remoteIP:   ip,
		remotePort: port,
		openedAt:   time.Now(),
		writer:     writer,
		buffer:     mylaps.NewFrameBuffer(id, settings.StaleBufferThreshold, settings.MaxBufferSize, logger),
		keepAlive:  settings.KeepAliveInterval,
		logger:     logger,
		closer:     closer,
		locations:  make(map[string]*models.Location),
		received:   utils.NewRing[string](settings.ReceivedFramesHistory),
		done:       make(chan struct{}),
	}
}

func splitRemoteAddr(addr net.Addr) (string, int) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port
	}
	if addr == nil {
		return "", 0
	}
	return addr.String(), 0
}

// ID returns the unique id of the connection.
func (c *Connection) ID() string {
	return c.id
}

// Writer returns the FrameWriter of the connection.
func (c *Connection) Writer() FrameWriter {
	return c.writer
}

// Identified reports whether the handshake has completed.
func (c *Connection) Identified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identified
}

// ProtocolVersion returns the negotiated protocol version, nil before the handshake.
func (c *Connection) ProtocolVersion() *semver.Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.protocolVersion
}

func (c *Connection) identify(version *semver.Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identified = true
	c.protocolVersion = version
}

func (c *Connection) setUserID(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = name
}

// upsertLocation creates the named location or refreshes its last-seen time.
// A non-nil computerName replaces the stored one. It reports whether the
// location was created.
func (c *Connection) upsertLocation(name string, computerName *string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, ok := c.locations[name]
	if !ok {
		cn := ""
		if computerName != nil {
			cn = *computerName
		}
		c.locations[name] = models.NewLocation(name, cn, now)
		return true
	}
	loc.LastSeen = now
	if computerName != nil {
		loc.ComputerName = *computerName
	}
	return false
}

// touchLocation refreshes the last-seen time of a known location.
func (c *Connection) touchLocation(name string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if loc, ok := c.locations[name]; ok {
		loc.LastSeen = now
	}
}

func (c *Connection) mergeDevice(locationName string, device models.Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.locations[locationName]
	if !ok {
		return false
	}
	return loc.MergeDevice(device)
}

// Location returns a copy of the named location.
func (c *Connection) Location(name string) (models.Location, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.locations[name]
	if !ok {
		return models.Location{}, false
	}
	cp := *loc
	cp.DevicesByName = make(map[string]models.Device, len(loc.DevicesByName))
	for k, v := range loc.DevicesByName {
		cp.DevicesByName[k] = v
	}
	return cp, true
}

func (c *Connection) recordReceived(frame string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received.Push(frame)
}

// ReceivedFrames returns the most recent raw frames, oldest first.
func (c *Connection) ReceivedFrames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.received.Items()
}

// Snapshot returns a read-only view of the connection.
func (c *Connection) Snapshot() models.ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return models.ConnectionInfo{
		ID:         c.id,
		UserID:     c.userID,
		SourceIP:   c.remoteIP,
		SourcePort: c.remotePort,
		OpenedAt:   c.openedAt,
		Identified: c.identified,
		Locations:  utils.SortedKeys(c.locations),
	}
}

// runKeepAlive pings the client every keep-alive interval until the
// connection is closed or ctx is cancelled.
func (c *Connection) runKeepAlive(ctx context.Context) {
	if c.keepAlive <= 0 {
		return
	}
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.writer.SendData(constants.ServerName, mylaps.FunctionPing.String()); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to send keep-alive ping")
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the keep-alive loop and closes the socket. It is safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closer != nil {
			err = c.closer.Close()
		}
	})
	return err
}
