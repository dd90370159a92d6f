package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/racemap/mylaps-forwarder/internal/mylaps"
	"github.com/racemap/mylaps-forwarder/internal/traffic"
	"github.com/rs/zerolog"
)

const readBufferSize = 4096

// UpstreamStatus reports the last known availability of the upstream API.
type UpstreamStatus interface {
	Available() bool
}

// ForwarderService accepts MyLaps timing clients and runs the protocol on every connection.
type ForwarderService struct {
	Address  string
	Settings ConnectionSettings
	Handler  *ProtocolHandler
	Upstream UpstreamStatus
	Recorder *traffic.Recorder
	Logger   zerolog.Logger

	connections cmap.ConcurrentMap[string, *Connection]
	listener    net.Listener
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewForwarderService initializes a new ForwarderService listening on address.
// upstream and recorder may be nil.
func NewForwarderService(address string, settings ConnectionSettings, handler *ProtocolHandler,
	upstream UpstreamStatus, recorder *traffic.Recorder, logger zerolog.Logger) *ForwarderService {

	return &ForwarderService{
		Address:     address,
		Settings:    settings,
		Handler:     handler,
		Upstream:    upstream,
		Recorder:    recorder,
		Logger:      logger,
		connections: cmap.New[*Connection](),
	}
}

// Start binds the listener and accepts connections in a separate goroutine.
// A bind failure is returned.
func (f *ForwarderService) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ctx != nil {
		f.Logger.Warn().Msg("ForwarderService is already running")
		return errors.New("forwarder service is already running")
	}

	listener, err := net.Listen("tcp", f.Address)
	if err != nil {
		f.Logger.Error().Err(err).Str("address", f.Address).Msg("Failed to bind listener")
		return fmt.Errorf("failed to listen on %s: %w", f.Address, err)
	}

	f.listener = listener
	f.ctx, f.cancel = context.WithCancel(context.Background())

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.acceptLoop(f.ctx, listener)
	}()

	f.Logger.Info().Str("address", listener.Addr().String()).Msg("ForwarderService started successfully")
	return nil
}

// Stop closes the listener and every connection and waits for their goroutines.
func (f *ForwarderService) Stop() error {
	f.mu.Lock()
	if f.ctx == nil {
		f.mu.Unlock()
		f.Logger.Warn().Msg("ForwarderService is not running")
		return errors.New("forwarder service is not running")
	}
	f.cancel()
	err := f.listener.Close()
	f.mu.Unlock()

	for _, c := range f.connections.Items() {
		_ = c.Close()
	}
	f.wg.Wait()

	f.mu.Lock()
	f.ctx = nil
	f.cancel = nil
	f.listener = nil
	f.mu.Unlock()

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	f.Logger.Info().Msg("ForwarderService stopped successfully")
	return nil
}

// Addr returns the bound address, nil while the service is stopped.
func (f *ForwarderService) Addr() net.Addr {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

// State returns a snapshot of the forwarder and its connections ordered by opening time.
func (f *ForwarderService) State() models.ForwarderState {
	connections := make([]models.ConnectionInfo, 0, f.connections.Count())
	for _, c := range f.connections.Items() {
		connections = append(connections, c.Snapshot())
	}
	sort.Slice(connections, func(i, j int) bool {
		if connections[i].OpenedAt.Equal(connections[j].OpenedAt) {
			return connections[i].ID < connections[j].ID
		}
		return connections[i].OpenedAt.Before(connections[j].OpenedAt)
	})

	return models.ForwarderState{
		Version:           constants.ForwarderVersion.String(),
		UpstreamAvailable: f.Upstream != nil && f.Upstream.Available(),
		Connections:       connections,
	}
}

// LastReceivedFrames returns the recent raw frames of the connection with the given id.
func (f *ForwarderService) LastReceivedFrames(id string) ([]string, bool) {
	c, ok := f.connections.Get(id)
	if !ok {
		return nil, false
	}
	return c.ReceivedFrames(), true
}

func (f *ForwarderService) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			f.Logger.Error().Err(err).Msg("Failed to accept connection")
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.serve(ctx, conn)
		}()
	}
}

// serve runs one connection until the client disconnects or the service stops.
func (f *ForwarderService) serve(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	logger := f.Logger
	writer := newSocketWriter(conn, f.Recorder, logger.With().Str("conn_id", id).Logger())
	c := newConnection(id, conn.RemoteAddr(), writer, conn, f.Settings, logger)

	f.connections.Set(id, c)
	c.logger.Info().Msg("Client connected")

	if ctx.Err() != nil {
		_ = c.Close()
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		c.runKeepAlive(ctx)
	}()

	err := f.readLoop(c, conn)

	_ = c.Close()
	f.connections.Remove(id)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		c.logger.Warn().Err(err).Msg("Client connection failed")
	}
	c.logger.Info().Int("remaining", f.connections.Count()).Msg("Client disconnected")
}

func (f *ForwarderService) readLoop(c *Connection, conn net.Conn) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.buffer.Append(mylaps.StripZeroBytes(buf[:n]))
			c.buffer.Drain(func(frame []byte) {
				f.Handler.HandleFrame(c, frame)
			})
		}
		if err != nil {
			return err
		}
	}
}
