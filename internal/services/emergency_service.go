package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benmeehan/sos-agent/internal/constants"
	"github.com/benmeehan/sos-agent/internal/entities"
	mqtt_middleware "github.com/benmeehan/sos-agent/internal/middlewares/mqtt"
	"github.com/benmeehan/sos-agent/internal/models"
	"github.com/benmeehan/sos-agent/internal/shake"
	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/benmeehan/sos-agent/internal/utils"
	"github.com/benmeehan/sos-agent/pkg/identity"
	"github.com/benmeehan/sos-agent/pkg/motion"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAlreadyActive is returned by Activate while an emergency is in progress.
var ErrAlreadyActive = errors.New("emergency is already active")

// LocationSource is the part of the tracker the coordinator relies on.
type LocationSource interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() tracker.LocationState
	Subscribe(fn func(tracker.LocationState)) func()
}

// EmergencyService glues the shake trigger to the emergency transition and keeps the
// presentation feed (location + nearby entities) up to date. Each Start opens a fresh
// session with its own detector and tracker.
type EmergencyService struct {
	// Configuration fields
	viewTopic       string
	activationTopic string
	qos             int
	baseMode        entities.Mode
	shakeConfig     shake.Config

	// Dependencies
	deviceInfo identity.DeviceInfoInterface
	publisher  mqtt_middleware.Publisher
	sampler    motion.Sampler
	newTracker func() LocationSource
	logger     zerolog.Logger
	now        func() time.Time

	// OnActivate is called after an activation has been recorded, e.g. to navigate
	// the presentation layer to the emergency screen. It must not block.
	OnActivate func(models.EmergencyActivation)

	// Internal state management
	mu          sync.Mutex
	running     bool
	ctx         context.Context
	cancel      context.CancelFunc
	detector    *shake.Detector
	tracker     LocationSource
	unsubscribe func()
	pool        *utils.WorkerPool
	mode        entities.Mode
	activation  *models.EmergencyActivation
	advisory    string
}

// NewEmergencyService creates a new EmergencyService instance with the provided configuration.
func NewEmergencyService(viewTopic, activationTopic string, qos int, baseMode entities.Mode, shakeConfig shake.Config,
	deviceInfo identity.DeviceInfoInterface, publisher mqtt_middleware.Publisher, sampler motion.Sampler,
	newTracker func() LocationSource, logger zerolog.Logger) *EmergencyService {
	return &EmergencyService{
		viewTopic:       viewTopic,
		activationTopic: activationTopic,
		qos:             qos,
		baseMode:        baseMode,
		shakeConfig:     shakeConfig,
		deviceInfo:      deviceInfo,
		publisher:       publisher,
		sampler:         sampler,
		newTracker:      newTracker,
		logger:          logger,
		now:             time.Now,
		mode:            baseMode,
	}
}

// Start opens a session: location tracking first, then shake detection. A detector that
// cannot run (denied or unsupported) leaves an advisory instead of failing the service.
func (e *EmergencyService) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Warn().Msg("EmergencyService is already running")
		return errors.New("emergency service is already running")
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.pool = utils.NewWorkerPool(1, 64)
	e.tracker = e.newTracker()
	e.detector = shake.NewDetector(e.sampler, e.shakeConfig, e.onShake, e.logger.With().Str("component", "shake").Logger())
	e.mode = e.baseMode
	e.activation = nil
	e.advisory = ""
	e.running = true
	ctx, trk, detector := e.ctx, e.tracker, e.detector
	e.mu.Unlock()

	unsubscribe := trk.Subscribe(func(tracker.LocationState) { e.publishView() })
	e.mu.Lock()
	e.unsubscribe = unsubscribe
	e.mu.Unlock()

	if err := trk.Start(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Failed to start location tracking")
		e.teardown()
		return fmt.Errorf("failed to start location tracking: %w", err)
	}

	if err := detector.Start(ctx); err != nil {
		e.setAdvisory(err)
	}

	e.publishView()
	e.logger.Info().
		Str("view_topic", e.viewTopic).
		Str("activation_topic", e.activationTopic).
		Str("mode", string(e.baseMode)).
		Msg("EmergencyService started")
	return nil
}

func (e *EmergencyService) setAdvisory(err error) {
	advisory := err.Error()
	switch {
	case errors.Is(err, shake.ErrPermissionDenied):
		advisory = constants.AdvisoryMotionDenied
	case errors.Is(err, shake.ErrUnsupported):
		advisory = constants.AdvisoryMotionUnsupported
	}

	e.mu.Lock()
	e.advisory = advisory
	e.mu.Unlock()
	e.logger.Warn().Err(err).Str("advisory", advisory).Msg("Shake activation unavailable")
}

// Stop closes the session. Teardown never fails on the detector or the tracker.
func (e *EmergencyService) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.logger.Warn().Msg("EmergencyService is not running")
		return errors.New("emergency service is not running")
	}
	e.mu.Unlock()

	e.teardown()
	e.logger.Info().Msg("EmergencyService stopped")
	return nil
}

func (e *EmergencyService) teardown() {
	e.mu.Lock()
	detector, trk, unsubscribe, pool, cancel := e.detector, e.tracker, e.unsubscribe, e.pool, e.cancel
	e.detector, e.unsubscribe = nil, nil
	e.running = false
	e.mu.Unlock()

	if detector != nil {
		detector.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if trk != nil {
		trk.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if pool != nil {
		pool.Shutdown()
	}
}

func (e *EmergencyService) onShake(ev shake.Event) {
	if _, err := e.Activate(constants.ActivationSourceShake); err != nil {
		e.logger.Warn().Err(err).Time("at", ev.At).Msg("Shake burst ignored")
	}
}

// Activate enters emergency mode, publishes the activation record and notifies OnActivate.
func (e *EmergencyService) Activate(source string) (models.EmergencyActivation, error) {
	mode := entities.ModeSelfEmergency
	if source == constants.ActivationSourceMedical {
		mode = entities.ModeMedicalEmergency
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return models.EmergencyActivation{}, errors.New("emergency service is not running")
	}
	if e.activation != nil {
		current := *e.activation
		e.mu.Unlock()
		return current, ErrAlreadyActive
	}
	loc := e.tracker.Snapshot()
	activation := models.EmergencyActivation{
		ID:          uuid.New(),
		DeviceID:    e.deviceInfo.GetDeviceID(),
		Timestamp:   e.now(),
		Source:      source,
		Mode:        mode,
		Location:    loc.Current,
		IsSimulated: loc.IsSimulated,
	}
	e.activation = &activation
	e.mode = mode
	onActivate := e.OnActivate
	e.mu.Unlock()

	e.logger.Info().
		Str("activation_id", activation.ID.String()).
		Str("source", source).
		Float64("lat", activation.Location.Lat).
		Float64("lng", activation.Location.Lng).
		Bool("simulated", activation.IsSimulated).
		Msg("Emergency activated")

	e.publish(e.activationTopic, false, true, activation)
	e.publishView()
	if onActivate != nil {
		onActivate(activation)
	}
	return activation, nil
}

// Deactivate leaves emergency mode and re-arms the shake detector.
func (e *EmergencyService) Deactivate() error {
	e.mu.Lock()
	if e.activation == nil {
		e.mu.Unlock()
		return errors.New("no active emergency")
	}
	id := e.activation.ID
	e.activation = nil
	e.mode = e.baseMode
	detector := e.detector
	e.mu.Unlock()

	if detector != nil {
		detector.Rearm()
	}
	e.logger.Info().Str("activation_id", id.String()).Msg("Emergency deactivated")
	e.publishView()
	return nil
}

// SetBaseMode switches the view used outside an emergency.
func (e *EmergencyService) SetBaseMode(mode entities.Mode) error {
	if mode.IsEmergency() {
		return fmt.Errorf("%s is not a base mode", mode)
	}
	if _, err := entities.ParseMode(string(mode)); err != nil {
		return err
	}

	e.mu.Lock()
	e.baseMode = mode
	if e.activation == nil {
		e.mode = mode
	}
	e.mu.Unlock()

	e.publishView()
	return nil
}

// View assembles the current presentation snapshot.
func (e *EmergencyService) View() models.EmergencyView {
	e.mu.Lock()
	mode, advisory, trk := e.mode, e.advisory, e.tracker
	var activationID *uuid.UUID
	if e.activation != nil {
		id := e.activation.ID
		activationID = &id
	}
	e.mu.Unlock()

	var loc tracker.LocationState
	if trk != nil {
		loc = trk.Snapshot()
	}
	return models.EmergencyView{
		DeviceID:     e.deviceInfo.GetDeviceID(),
		Timestamp:    e.now(),
		Mode:         mode,
		Active:       activationID != nil,
		ActivationID: activationID,
		Location:     loc,
		Entities:     entities.Generate(loc.Current, mode),
		Advisory:     advisory,
	}
}

// Location returns the session's current location state.
func (e *EmergencyService) Location() tracker.LocationState {
	e.mu.Lock()
	trk := e.tracker
	e.mu.Unlock()
	if trk == nil {
		return tracker.LocationState{Phase: tracker.PhaseUnstarted}
	}
	return trk.Snapshot()
}

// ShakeArmed reports whether a shake burst would currently activate an emergency.
func (e *EmergencyService) ShakeArmed() bool {
	e.mu.Lock()
	detector := e.detector
	e.mu.Unlock()
	return detector != nil && detector.Running() && detector.Armed()
}

func (e *EmergencyService) publishView() {
	e.publish(e.viewTopic, true, false, e.View())
}

// publish serialises v and hands it to the session's publish queue so broker latency
// never stalls the sensor callbacks. View updates are dropped when the queue is full,
// since the next one supersedes them; must-deliver messages wait for a slot instead.
// Failures are logged only.
func (e *EmergencyService) publish(topic string, retained, mustDeliver bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Error().Err(err).Str("topic", topic).Msg("Failed to serialize message")
		return
	}

	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	if pool == nil {
		return
	}

	task := func() {
		if err := e.publisher.Publish(topic, byte(e.qos), retained, payload); err != nil {
			e.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish message to MQTT")
			return
		}
		e.logger.Debug().Str("topic", topic).Msg("Message published")
	}
	submit := pool.TrySubmit
	if mustDeliver {
		submit = pool.Submit
	}
	queued := submit(task)
	if !queued {
		e.logger.Warn().Str("topic", topic).Msg("Publish queue unavailable, dropping message")
	}
}
