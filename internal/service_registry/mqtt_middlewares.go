package service_registry

import (
	"fmt"

	"github.com/benmeehan/sos-agent/internal/constants"
	mqtt_middleware "github.com/benmeehan/sos-agent/internal/middlewares/mqtt"
	"github.com/benmeehan/sos-agent/internal/utils"
	"github.com/benmeehan/sos-agent/pkg/identity"
)

// InitializeMiddlewares sets up the middleware chain based on configuration.
func (sr *ServiceRegistry) InitializeMiddlewares(config *utils.Config, deviceInfo identity.DeviceInfoInterface) (mqtt_middleware.MQTTMiddleware, error) {
	var middlewares []mqtt_middleware.MQTTMiddleware

	// Ordered middleware definitions
	middlewaresInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (mqtt_middleware.MQTTMiddleware, error)
	}{
		{
			name:    constants.NAMESPACE_MIDDLEWARE,
			enabled: config.Middlewares.Namespace.Enabled,
			constructor: func() (mqtt_middleware.MQTTMiddleware, error) {
				return mqtt_middleware.NewNamespaceMiddleware(
					config.Middlewares.Namespace.Prefix,
					deviceInfo,
					sr.Logger.With().Str("middleware", constants.NAMESPACE_MIDDLEWARE).Logger(),
				), nil
			},
		},
	}

	for _, mw := range middlewaresInOrder {
		if !mw.enabled {
			sr.Logger.Debug().Str("middleware", mw.name).Msg("Middleware is disabled, skipping")
			continue
		}
		middlewareInstance, err := mw.constructor()
		if err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to create %s middleware", mw.name)
			return nil, fmt.Errorf("failed to create %s middleware: %w", mw.name, err)
		}
		middlewares = append(middlewares, middlewareInstance)
		sr.Logger.Info().Str("middleware", mw.name).Msg("Middleware created")
	}

	chainedClient := mqtt_middleware.NewChainedMQTTClient(sr.mqttClient, middlewares)
	if err := chainedClient.Init(nil); err != nil {
		sr.Logger.Error().Err(err).Msg("Failed to initialize middleware chain")
		return nil, err
	}
	sr.publisher = chainedClient
	sr.Logger.Info().Int("middleware_count", len(middlewares)).Msg("Middleware chain initialized")
	return chainedClient, nil
}
