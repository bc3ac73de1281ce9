package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/sos-agent/internal/constants"
	"github.com/benmeehan/sos-agent/internal/metrics_collectors"
	mqtt_middleware "github.com/benmeehan/sos-agent/internal/middlewares/mqtt"
	"github.com/benmeehan/sos-agent/internal/models"
	"github.com/benmeehan/sos-agent/pkg/identity"
	"github.com/rs/zerolog"
)

// StatusSource is what the status service reports about the emergency session.
type StatusSource interface {
	View() models.EmergencyView
	ShakeArmed() bool
}

// StatusService manages periodic status messages.
type StatusService struct {
	PubTopic   string
	Interval   time.Duration
	DeviceInfo identity.DeviceInfoInterface
	QOS        int
	Publisher  mqtt_middleware.Publisher
	Source     StatusSource
	Metrics    *metrics_collectors.MetricsRegistry // optional host telemetry
	Logger     zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatusService initializes a new StatusService.
func NewStatusService(pubTopic string, interval time.Duration, deviceInfo identity.DeviceInfoInterface,
	qos int, publisher mqtt_middleware.Publisher, source StatusSource, metrics *metrics_collectors.MetricsRegistry,
	logger zerolog.Logger) *StatusService {

	return &StatusService{
		PubTopic:   pubTopic,
		Interval:   interval,
		DeviceInfo: deviceInfo,
		QOS:        qos,
		Publisher:  publisher,
		Source:     source,
		Metrics:    metrics,
		Logger:     logger,
	}
}

// Start launches the status loop in a separate goroutine.
func (s *StatusService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.Logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func(ctx context.Context) {
		defer s.wg.Done()
		s.runStatusLoop(ctx)
	}(s.ctx)

	s.Logger.Info().Str("topic", s.PubTopic).Msg("StatusService started successfully")
	return nil
}

// Stop gracefully stops the status service.
func (s *StatusService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		s.Logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}

	s.cancel()
	s.wg.Wait()

	s.ctx = nil
	s.cancel = nil

	s.Logger.Info().Msg("StatusService stopped successfully")
	return nil
}

func (s *StatusService) runStatusLoop(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.publishStatus(ctx); err != nil {
				s.Logger.Error().Err(err).Msg("Failed to publish status message")
			} else {
				s.Logger.Debug().Msg("Status published successfully")
			}
		case <-ctx.Done():
			s.Logger.Info().Msg("StatusService stopping gracefully")
			return
		}
	}
}

// BuildStatus assembles a status message from the current session.
func (s *StatusService) BuildStatus(ctx context.Context) models.Status {
	view := s.Source.View()
	status := constants.StatusAlive
	if view.Active {
		status = constants.StatusEmergency
	}

	var metrics map[string]float64
	if s.Metrics != nil {
		metrics = s.Metrics.Collect(ctx)
	}

	return models.Status{
		DeviceID:    s.DeviceInfo.GetDeviceID(),
		Timestamp:   time.Now(),
		Status:      status,
		Metrics:     metrics,
		ShakeArmed:  s.Source.ShakeArmed(),
		IsSimulated: view.Location.IsSimulated,
		Mode:        string(view.Mode),
	}
}

func (s *StatusService) publishStatus(ctx context.Context) error {
	payload, err := json.Marshal(s.BuildStatus(ctx))
	if err != nil {
		return err
	}
	return s.Publisher.Publish(s.PubTopic, byte(s.QOS), false, payload)
}
