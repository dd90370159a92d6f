package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/racemap/mylaps-forwarder/internal/mylaps"
	"github.com/racemap/mylaps-forwarder/internal/traffic"
	"github.com/rs/zerolog"
)

// ReadDispatcher accepts decoded timing reads for delivery. Dispatch must not block on delivery.
type ReadDispatcher interface {
	Dispatch(source string, reads []models.TimingRead)
}

// ProtocolHandler drives the MyLaps protocol state of connections, one frame at a time.
type ProtocolHandler struct {
	dispatcher ReadDispatcher
	decoder    *mylaps.Decoder
	recorder   *traffic.Recorder
	supported  *semver.Constraints
	handshake  *semver.Version
	logger     zerolog.Logger
	now        func() time.Time
}

// NewProtocolHandler creates a handler that hands decoded reads to dispatcher.
func NewProtocolHandler(dispatcher ReadDispatcher, recorder *traffic.Recorder, logger zerolog.Logger) (*ProtocolHandler, error) {
	supported, err := semver.NewConstraint(constants.SupportedProtocolVersions)
	if err != nil {
		return nil, fmt.Errorf("invalid protocol version constraint: %w", err)
	}
	handshake, err := semver.NewVersion(constants.ProtocolVersion21)
	if err != nil {
		return nil, fmt.Errorf("invalid handshake protocol version: %w", err)
	}
	return &ProtocolHandler{
		dispatcher: dispatcher,
		decoder:    mylaps.NewDecoder(logger),
		recorder:   recorder,
		supported:  supported,
		handshake:  handshake,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// HandleFrame processes one frame received on c. Panics are recovered so a
// single bad frame never takes the connection down.
func (h *ProtocolHandler) HandleFrame(c *Connection, frame []byte) {
	logger := c.logger
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("frame", frame).Msg("Recovered from panic while handling frame")
		}
	}()

	msg := mylaps.ParseMessage(frame)
	c.recordReceived(msg.Raw)
	h.recorder.Record(traffic.FromClient, msg.Raw)
	logger.Debug().Str("frame", msg.Raw).Msg("Received frame")

	if !c.Identified() {
		h.handleWelcome(c, msg)
		return
	}
	h.handleMessage(c, msg)
}

// handleWelcome expects the 3 field handshake Name@Pong@$ or Name@Ping@$.
func (h *ProtocolHandler) handleWelcome(c *Connection, msg mylaps.Message) {
	if msg.Len() != 3 || (msg.Function != mylaps.FunctionPing && msg.Function != mylaps.FunctionPong) {
		c.logger.Warn().Strs("fields", msg.Fields).Msg("Unknown welcome message")
		return
	}

	c.identify(h.handshake)
	c.logger.Info().Str("client", msg.Field(0)).Str("version", constants.ProtocolVersion21).Msg("Client identified")

	w := c.Writer()
	h.send(c, w.SendData(constants.ServerName, mylaps.FunctionAckPong.String(), "", constants.HandshakeVersionTag))
	h.send(c, w.SendData(constants.ServerName, mylaps.FunctionGetLocations.String()))
	h.send(c, w.SendData(constants.ServerName, mylaps.FunctionGetInfo.String()))
}

func (h *ProtocolHandler) handleMessage(c *Connection, msg mylaps.Message) {
	if v := c.ProtocolVersion(); v == nil || !h.supported.Check(v) {
		version := "none"
		if v != nil {
			version = v.Original()
		}
		c.logger.Warn().Str("version", version).Msg("Ignoring message, protocol version is not supported")
		return
	}
	if msg.Len() < 2 {
		c.logger.Warn().Str("frame", msg.Raw).Msg("Message without function received")
		return
	}

	w := c.Writer()
	locationName := msg.Field(0)

	switch msg.Function {
	case mylaps.FunctionPong:
		h.send(c, w.SendData(constants.ServerName, mylaps.FunctionAckPong.String()))
		h.upsertLocation(c, locationName, nil)
		c.logger.Info().Str("location", locationName).Msg("Pong received from client")

	case mylaps.FunctionPing:
		h.send(c, w.SendData(constants.ServerName, mylaps.FunctionAckPing.String()))
		h.upsertLocation(c, locationName, nil)
		c.logger.Info().Str("location", locationName).Msg("Ping received from client")

	case mylaps.FunctionAckPong, mylaps.FunctionAckPing:
		h.upsertLocation(c, locationName, nil)
		c.logger.Debug().Str("location", locationName).Stringer("function", msg.Function).Msg("Keep-alive acknowledged")

	case mylaps.FunctionGetLocations:
		h.handleGetLocations(c, msg)

	case mylaps.FunctionAckGetInfo:
		h.handleAckGetInfo(c, msg)

	case mylaps.FunctionPassing:
		h.handlePassing(c, msg)

	case mylaps.FunctionStore:
		h.handleStore(c, msg)

	case mylaps.FunctionMarker:
		h.handleMarker(c, msg)

	default:
		c.logger.Warn().Str("function", msg.FunctionCode()).Strs("fields", msg.Fields).Msg("Message with unknown MyLaps function received")
	}
}

// Toolkit@GetLocations@ln=Start@ln=5K@ln=Finish@$
func (h *ProtocolHandler) handleGetLocations(c *Connection, msg mylaps.Message) {
	c.setUserID(msg.Field(0))
	for i := 2; i < msg.Len()-1; i++ {
		key, name, ok := strings.Cut(msg.Field(i), mylaps.KeyValueSeparator)
		if !ok || key != mylaps.LocationNameKey || name == "" || strings.Contains(name, mylaps.KeyValueSeparator) {
			c.logger.Warn().Str("entry", msg.Field(i)).Msg("Unknown location parameter")
			continue
		}
		h.upsertLocation(c, name, nil)
	}
	c.logger.Info().Strs("locations", c.Snapshot().Locations).Msg("Answer to GetLocations received")
}

// AckGetInfo comes in two shapes:
//
//	v1: Start@AckGetInfo@<device name>@Unknown@<computer name>@$
//	v2: 20M@AckGetInfo@id=20250558687|n=BibTagDecoder00DF|mac=0004B70700DF|ant=2@$
func (h *ProtocolHandler) handleAckGetInfo(c *Connection, msg mylaps.Message) {
	if msg.Len() <= 4 {
		c.logger.Warn().Int("fields", msg.Len()).Strs("parts", msg.Fields).Msg("AckGetInfo message with wrong part length received")
		return
	}
	locationName := msg.Field(0)
	details := msg.Field(2)

	if msg.Field(3) == mylaps.LegacyDeviceMarker {
		computerName := msg.Field(4)
		h.upsertLocation(c, locationName, &computerName)
		c.mergeDevice(locationName, models.Device{DeviceName: &details})
	} else {
		device, err := h.decoder.DecodeDevice(details)
		if err != nil {
			c.logger.Warn().Err(err).Str("record", details).Msg("Invalid device record received")
			return
		}
		h.upsertLocation(c, locationName, nil)
		c.mergeDevice(locationName, device)
	}
	c.logger.Info().Str("location", locationName).Msg("AckGetInfo message received")
}

// 10KM@Passing@t=13:11:30.904|c=0000041|ct=UH|d=120606@t=13:12:21.830|c=0000039|ct=UH|d=120606@1016@$
// is answered with Server@AckPassing@1016@$
func (h *ProtocolHandler) handlePassing(c *Connection, msg mylaps.Message) {
	locationName := msg.Field(0)
	defer c.touchLocation(locationName, h.now())

	counter, ok := h.counter(c, msg)
	if !ok || counter <= 0 {
		return
	}

	reads := make([]models.TimingRead, 0, msg.Len()-4)
	for i := 2; i < msg.Len()-2; i++ {
		read, err := h.decoder.PassingToRead(locationName, locationName, msg.Field(i))
		if err != nil {
			c.logger.Warn().Err(err).Str("record", msg.Field(i)).Msg("Invalid passing received")
			continue
		}
		reads = append(reads, read)
	}
	h.send(c, c.Writer().SendData(constants.ServerName, mylaps.FunctionAckPassing.String(), strconv.Itoa(counter)))
	h.dispatch(c, locationName, reads)
}

// MTB Split 4Km@Store@KV8658316:13:57.417 3 0F  1000025030870@TC3970116:14:00.638 3 0F  1000125030857@2@$
// is answered with Server@AckStore@2@$
func (h *ProtocolHandler) handleStore(c *Connection, msg mylaps.Message) {
	locationName := msg.Field(0)
	defer c.touchLocation(locationName, h.now())

	counter, ok := h.counter(c, msg)
	if !ok {
		return
	}

	if counter > 0 {
		reads := make([]models.TimingRead, 0, msg.Len()-4)
		for i := 2; i < msg.Len()-2; i++ {
			read, ok := h.decoder.LegacyPassingToRead(locationName, msg.Field(i))
			if !ok {
				c.logger.Warn().Str("record", msg.Field(i)).Msg("Invalid stored passing received")
				continue
			}
			reads = append(reads, read)
		}
		h.dispatch(c, locationName, reads)
	}
	h.send(c, c.Writer().SendData(constants.ServerName, mylaps.FunctionAckStore.String(), strconv.Itoa(counter)))
}

// Start@Marker@mt=Gunshot|t=11:03:40.347|n=Gunshot 1@7@$
func (h *ProtocolHandler) handleMarker(c *Connection, msg mylaps.Message) {
	counter, ok := h.counter(c, msg)
	if !ok {
		return
	}

	var markers []mylaps.Marker
	if counter > 0 {
		for i := 2; i < msg.Len()-2; i++ {
			marker, err := h.decoder.DecodeMarker(msg.Field(i))
			if err != nil {
				c.logger.Warn().Err(err).Str("record", msg.Field(i)).Msg("Invalid marker received")
				continue
			}
			markers = append(markers, marker)
		}
	}
	c.logger.Warn().Int("count", len(markers)).Str("location", msg.Field(0)).Msg("Markers are not forwarded, dropping them")
	h.send(c, c.Writer().SendData(constants.ServerName, mylaps.FunctionAckMarker.String(), strconv.Itoa(counter)))
}

// counter reads the attempt counter of a Passing, Store or Marker frame.
func (h *ProtocolHandler) counter(c *Connection, msg mylaps.Message) (int, bool) {
	if msg.Len() <= 4 {
		c.logger.Warn().Stringer("function", msg.Function).Int("fields", msg.Len()).Msg("Message with wrong part length received")
		return 0, false
	}
	raw := msg.Field(msg.Len() - 2)
	counter, err := strconv.Atoi(raw)
	if err != nil {
		c.logger.Warn().Stringer("function", msg.Function).Str("counter", raw).Msg("Message with invalid counter received")
		return 0, false
	}
	return counter, true
}

// upsertLocation creates or refreshes a location and asks the client for the
// devices of every new one.
func (h *ProtocolHandler) upsertLocation(c *Connection, name string, computerName *string) {
	if !c.upsertLocation(name, computerName, h.now()) {
		return
	}
	c.logger.Info().Str("location", name).Msg("New location detected")
	h.send(c, c.Writer().SendData(constants.ServerName, mylaps.FunctionGetInfo.String(), name))
}

func (h *ProtocolHandler) dispatch(c *Connection, locationName string, reads []models.TimingRead) {
	if len(reads) == 0 || h.dispatcher == nil {
		return
	}
	c.logger.Info().Str("location", locationName).Int("count", len(reads)).Msg("Forwarding timing reads")
	h.dispatcher.Dispatch(c.ID(), reads)
}

func (h *ProtocolHandler) send(c *Connection, err error) {
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to answer client")
	}
}
