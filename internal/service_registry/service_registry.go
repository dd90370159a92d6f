package service_registry

import (
	"errors"
	"fmt"

	"github.com/racemap/mylaps-forwarder/internal/racemap"
	"github.com/racemap/mylaps-forwarder/internal/registry"
	"github.com/racemap/mylaps-forwarder/internal/services"
	"github.com/racemap/mylaps-forwarder/internal/traffic"
	"github.com/racemap/mylaps-forwarder/internal/utils"
	"github.com/racemap/mylaps-forwarder/pkg/file"
	"github.com/racemap/mylaps-forwarder/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	fileClient  file.FileOperations
	Logger      zerolog.Logger

	forwarder  *services.ForwarderService
	dispatcher *services.Dispatcher
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		fileClient: fileClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order and then drains the
// timing reads still waiting for delivery.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if sr.dispatcher != nil {
		sr.dispatcher.Stop()
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// Forwarder returns the registered forwarder, nil before RegisterServices.
func (sr *ServiceRegistry) Forwarder() *services.ForwarderService {
	return sr.forwarder
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config) error {
	upstream := racemap.NewClient(config.Upstream.Host, config.Upstream.APIToken, config.Upstream.Timeout)
	recorder := traffic.NewRecorder(config.Forwarder.TrafficLogFile, sr.fileClient, sr.Logger)

	var mirror *services.MirrorService
	var upstreamStatus services.UpstreamStatus

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "mirror",
			enabled: config.Mirror.Enabled,
			constructor: func() (registry.Service, error) {
				mqttClient := mqtt.NewMqttService(sr.fileClient)
				mirror = services.NewMirrorService(
					config.Mirror.Topic,
					config.Mirror.QOS,
					mqttClient,
					func() error {
						return mqttClient.Initialize(config.Mirror.Broker, config.Mirror.ClientID, config.Mirror.CACertificate)
					},
					sr.logger("mirror"),
				)
				return mirror, nil
			},
		},
		{
			name:    "upstream_health",
			enabled: config.Upstream.HealthCheck.Enabled,
			constructor: func() (registry.Service, error) {
				health := services.NewUpstreamHealthService(
					upstream,
					config.Upstream.HealthCheck.Interval,
					config.Upstream.Timeout,
					sr.logger("upstream_health"),
				)
				upstreamStatus = health
				return health, nil
			},
		},
		{
			name:    "forwarder",
			enabled: true,
			constructor: func() (registry.Service, error) {
				var mirrorSink services.ReadSink
				if mirror != nil {
					mirrorSink = mirror
				}
				sr.dispatcher = services.NewDispatcher(
					upstream,
					mirrorSink,
					config.Upstream.Workers,
					config.Upstream.QueueSize,
					config.Upstream.Timeout,
					sr.logger("dispatcher"),
				)
				handler, err := services.NewProtocolHandler(sr.dispatcher, recorder, sr.logger("protocol"))
				if err != nil {
					return nil, err
				}
				sr.forwarder = services.NewForwarderService(
					config.ListenAddress(),
					services.ConnectionSettings{
						KeepAliveInterval:     config.Forwarder.KeepAliveInterval,
						StaleBufferThreshold:  config.Forwarder.StaleBufferThreshold,
						MaxBufferSize:         config.Forwarder.MaxBufferSize,
						ReceivedFramesHistory: config.Forwarder.ReceivedFramesHistory,
					},
					handler,
					upstreamStatus,
					recorder,
					sr.logger("forwarder"),
				)
				return sr.forwarder, nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

func (sr *ServiceRegistry) logger(service string) zerolog.Logger {
	return sr.Logger.With().Str("service", service).Logger()
}
