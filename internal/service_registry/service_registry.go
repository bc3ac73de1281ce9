package service_registry

import (
	"errors"
	"fmt"
	"io"

	"github.com/benmeehan/sos-agent/internal/entities"
	"github.com/benmeehan/sos-agent/internal/metrics_collectors"
	mqtt_middleware "github.com/benmeehan/sos-agent/internal/middlewares/mqtt"
	"github.com/benmeehan/sos-agent/internal/registry"
	"github.com/benmeehan/sos-agent/internal/services"
	"github.com/benmeehan/sos-agent/internal/utils"
	"github.com/benmeehan/sos-agent/pkg/file"
	"github.com/benmeehan/sos-agent/pkg/identity"
	"github.com/benmeehan/sos-agent/pkg/motion"
	"github.com/benmeehan/sos-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	fileClient  file.FileOperations
	publisher   mqtt_middleware.Publisher
	closers     []io.Closer
	Logger      zerolog.Logger

	// Emergency is the activation coordinator, set by RegisterServices.
	Emergency *services.EmergencyService
	// Feed is the in-process motion source when motion.source is "feed".
	Feed *motion.FeedSampler
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
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

// StopServices stops all services in reverse order, then releases shared resources.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	for _, c := range sr.closers {
		if err := c.Close(); err != nil {
			stopErrors = append(stopErrors, err)
		}
	}
	sr.closers = nil

	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
// InitializeMiddlewares must have been called first.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	if sr.publisher == nil {
		return errors.New("middleware chain is not initialized")
	}

	baseMode, err := entities.ParseMode(config.Services.Emergency.BaseMode)
	if err != nil {
		return err
	}
	newTracker, err := sr.buildTrackerFactory(config)
	if err != nil {
		return err
	}
	sr.Emergency = services.NewEmergencyService(
		config.Services.Emergency.ViewTopic,
		config.Services.Emergency.ActivationTopic,
		config.Services.Emergency.QOS,
		baseMode,
		config.Shake,
		deviceInfo,
		sr.publisher,
		sr.buildSampler(config),
		newTracker,
		sr.Logger.With().Str("service", "emergency").Logger(),
	)

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "emergency",
			enabled: config.Services.Emergency.Enabled,
			constructor: func() (registry.Service, error) {
				return sr.Emergency, nil
			},
		},
		{
			name:    "location_report",
			enabled: config.Services.LocationReport.Enabled,
			constructor: func() (registry.Service, error) {
				return services.NewLocationReportService(
					config.Services.LocationReport.Topic,
					config.Services.LocationReport.Interval,
					config.Services.LocationReport.QOS,
					deviceInfo,
					sr.publisher,
					sr.Emergency,
					sr.Logger.With().Str("service", "location_report").Logger(),
				), nil
			},
		},
		{
			name:    "status",
			enabled: config.Services.Status.Enabled,
			constructor: func() (registry.Service, error) {
				logger := sr.Logger.With().Str("service", "status").Logger()
				metrics, err := metrics_collectors.NewDefaultRegistry(config.Services.Status.Metrics, logger)
				if err != nil {
					return nil, err
				}
				return services.NewStatusService(
					config.Services.Status.Topic,
					config.Services.Status.Interval,
					deviceInfo,
					config.Services.Status.QOS,
					sr.publisher,
					sr.Emergency,
					metrics,
					logger,
				), nil
			},
		},
		{
			name:    "control",
			enabled: config.Services.Control.Enabled,
			constructor: func() (registry.Service, error) {
				subscriber, ok := sr.publisher.(mqtt_middleware.Subscriber)
				if !ok {
					return nil, errors.New("middleware chain cannot subscribe")
				}
				var samples func(motion.Sample)
				if sr.Feed != nil {
					samples = sr.Feed.Push
				}
				return services.NewControlService(
					config.Services.Control.Topic,
					config.Services.Control.QOS,
					subscriber,
					sr.publisher,
					sr.Emergency,
					samples,
					sr.Logger.With().Str("service", "control").Logger(),
				), nil
			},
		},
	}

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
