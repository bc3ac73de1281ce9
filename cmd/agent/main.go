package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/sos-agent/internal/service_registry"
	"github.com/benmeehan/sos-agent/internal/utils"
	"github.com/benmeehan/sos-agent/pkg/file"
	"github.com/benmeehan/sos-agent/pkg/identity"
	"github.com/benmeehan/sos-agent/pkg/logger"
	"github.com/benmeehan/sos-agent/pkg/mqtt"
	"github.com/google/uuid"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// Bootstrap logger until the configured one is available
	log := logger.New("info", false)

	if err := utils.LoadEnv(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load environment")
	}

	configPath := os.Getenv("SOS_AGENT_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
	}
	log = logger.New(config.LogLevel, config.Pretty)

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load device information")
	}
	log = log.With().Str("device_id", deviceInfo.GetDeviceID()).Logger()

	// Generate a unique MQTT Client ID by appending a UUID
	clientID := config.MQTT.ClientID + "-" + uuid.New().String()
	log.Info().Str("client_id", clientID).Msg("Using MQTT Client ID")

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient, log.With().Str("component", "mqtt").Logger())
	err = mqttClient.Initialize(mqtt.BrokerConfig{
		Broker:         config.MQTT.Broker,
		ClientID:       clientID,
		Username:       config.MQTT.Username,
		Password:       config.MQTT.Password,
		CACertificate:  config.MQTT.CACertificate,
		ConnectTimeout: config.MQTT.ConnectTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}
	defer mqttClient.Disconnect(250)

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, fileClient, log)

	if _, err := serviceRegistry.InitializeMiddlewares(config, deviceInfo); err != nil {
		log.Error().Err(err).Msg("Failed to initialize MQTT middlewares")
		return
	}

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, deviceInfo); err != nil {
		log.Error().Err(err).Msg("Failed to register services")
		return
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Error().Err(err).Msg("Failed to start services")
		return
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Some services failed to stop cleanly")
	}
}
