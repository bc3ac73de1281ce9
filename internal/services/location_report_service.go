package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	mqtt_middleware "github.com/benmeehan/sos-agent/internal/middlewares/mqtt"
	"github.com/benmeehan/sos-agent/internal/models"
	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/benmeehan/sos-agent/pkg/identity"
	"github.com/rs/zerolog"
)

// LocationSnapshotter exposes the latest location state of a session.
type LocationSnapshotter interface {
	Location() tracker.LocationState
}

// LocationReportService periodically publishes the device position to an MQTT broker.
type LocationReportService struct {
	// Configuration fields
	topic    string
	interval time.Duration
	qos      int

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	publisher  mqtt_middleware.Publisher
	source     LocationSnapshotter
	logger     zerolog.Logger

	// Internal state management
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocationReportService creates a new LocationReportService instance with the provided configuration.
func NewLocationReportService(topic string, interval time.Duration, qos int, deviceInfo identity.DeviceInfoInterface,
	publisher mqtt_middleware.Publisher, source LocationSnapshotter, logger zerolog.Logger) *LocationReportService {
	return &LocationReportService{
		topic:      topic,
		interval:   interval,
		qos:        qos,
		deviceInfo: deviceInfo,
		publisher:  publisher,
		source:     source,
		logger:     logger,
	}
}

// Start initiates the LocationReportService, periodically publishing location data.
func (l *LocationReportService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.logger.Warn().Msg("LocationReportService is already running")
		return errors.New("location report service is already running")
	}

	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.running = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := l.publishCurrentLocation(); err != nil {
					l.logger.Error().Err(err).Msg("Failed to publish current location")
				}
			case <-l.ctx.Done():
				l.logger.Info().Msg("LocationReportService is stopping")
				return
			}
		}
	}()

	l.logger.Info().
		Str("topic", l.topic).
		Dur("interval_ms", l.interval).
		Int("qos", l.qos).
		Msg("LocationReportService started")
	return nil
}

// Stop gracefully stops the LocationReportService.
func (l *LocationReportService) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		l.logger.Warn().Msg("LocationReportService is not running")
		return errors.New("location report service is not running")
	}

	l.cancel()
	l.wg.Wait()
	l.running = false

	l.logger.Info().Msg("LocationReportService stopped")
	return nil
}

// publishCurrentLocation builds a report from the current session state and publishes it.
func (l *LocationReportService) publishCurrentLocation() error {
	state := l.source.Location()
	if state.Phase == tracker.PhaseUnstarted || state.Phase == tracker.PhaseStopped {
		l.logger.Debug().Str("phase", string(state.Phase)).Msg("No active session, skipping location report")
		return nil
	}

	report := models.LocationReport{
		DeviceID:    l.deviceInfo.GetDeviceID(),
		Timestamp:   time.Now(),
		Latitude:    state.Current.Lat,
		Longitude:   state.Current.Lng,
		IsSimulated: state.IsSimulated,
		Phase:       string(state.Phase),
		Error:       state.Error,
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	if err := l.publisher.Publish(l.topic, byte(l.qos), false, payload); err != nil {
		l.logger.Error().Err(err).Str("topic", l.topic).Msg("Failed to publish location message to MQTT")
		return err
	}

	l.logger.Debug().
		Interface("message", report).
		Str("topic", l.topic).
		Msg("Location published successfully")
	return nil
}
