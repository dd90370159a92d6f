package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/racemap/mylaps-forwarder/internal/models"
	"github.com/racemap/mylaps-forwarder/pkg/mqtt"
	"github.com/rs/zerolog"
)

// MirrorConnector connects the MQTT client of the mirror.
type MirrorConnector func() error

// MirrorService publishes every dispatched batch of timing reads to an MQTT topic.
type MirrorService struct {
	PubTopic   string
	QOS        int
	MqttClient mqtt.MQTTClient
	Connect    MirrorConnector
	Logger     zerolog.Logger

	running bool
}

// NewMirrorService initializes a new MirrorService. connect is called on Start and may be nil.
func NewMirrorService(pubTopic string, qos int, mqttClient mqtt.MQTTClient, connect MirrorConnector, logger zerolog.Logger) *MirrorService {
	return &MirrorService{
		PubTopic:   pubTopic,
		QOS:        qos,
		MqttClient: mqttClient,
		Connect:    connect,
		Logger:     logger,
	}
}

// Start connects to the broker.
func (m *MirrorService) Start() error {
	if m.running {
		m.Logger.Warn().Msg("MirrorService is already running")
		return errors.New("mirror service is already running")
	}
	if m.Connect != nil {
		if err := m.Connect(); err != nil {
			m.Logger.Error().Err(err).Msg("Failed to connect to MQTT broker")
			return fmt.Errorf("failed to connect mirror: %w", err)
		}
	}
	m.running = true
	m.Logger.Info().Str("topic", m.PubTopic).Msg("MirrorService started successfully")
	return nil
}

// Stop disconnects from the broker.
func (m *MirrorService) Stop() error {
	if !m.running {
		m.Logger.Warn().Msg("MirrorService is not running")
		return errors.New("mirror service is not running")
	}
	m.MqttClient.Disconnect(250)
	m.running = false
	m.Logger.Info().Msg("MirrorService stopped successfully")
	return nil
}

// Publish sends reads as one JSON message and waits for the broker until ctx is done.
func (m *MirrorService) Publish(ctx context.Context, reads []models.TimingRead) error {
	payload, err := json.Marshal(reads)
	if err != nil {
		return fmt.Errorf("failed to serialize timing reads: %w", err)
	}

	token := m.MqttClient.Publish(m.PubTopic, byte(m.QOS), false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing timing reads: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish timing reads: %w", err)
	}
	m.Logger.Debug().Int("count", len(reads)).Msg("Timing reads mirrored")
	return nil
}
