package services_test

import (
	"testing"
	"time"

	"github.com/benmeehan/sos-agent/internal/constants"
	"github.com/benmeehan/sos-agent/internal/entities"
	"github.com/benmeehan/sos-agent/internal/mocks"
	"github.com/benmeehan/sos-agent/internal/models"
	"github.com/benmeehan/sos-agent/internal/services"
	"github.com/benmeehan/sos-agent/internal/shake"
	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/benmeehan/sos-agent/pkg/motion"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	viewTopic       = "sos/view"
	activationTopic = "sos/activations"
)

var (
	rest = motion.Sample{X: 0, Y: 0, Z: 9.8}
	jolt = motion.Sample{X: 12, Y: -6, Z: 9.8}
)

type emergencyFixture struct {
	svc       *services.EmergencyService
	feed      *motion.FeedSampler
	publisher *recordingPublisher
}

func newEmergencyFixture(t *testing.T, feed *motion.FeedSampler, baseMode entities.Mode) *emergencyFixture {
	t.Helper()
	deviceInfo := new(mocks.MockDeviceInfo)
	deviceInfo.On("GetDeviceID").Return("device-1")

	publisher := &recordingPublisher{}
	// no debounce so a burst can be fed without sleeping
	shakeConfig := shake.Config{Threshold: shake.DefaultThreshold, CountThreshold: shake.DefaultCountThreshold}
	newTracker := func() services.LocationSource {
		return tracker.NewTracker(nil, nil, tracker.DefaultConfig(), zerolog.Nop())
	}

	svc := services.NewEmergencyService(viewTopic, activationTopic, 1, baseMode, shakeConfig,
		deviceInfo, publisher, feed, newTracker, zerolog.Nop())
	return &emergencyFixture{svc: svc, feed: feed, publisher: publisher}
}

func (f *emergencyFixture) burst() {
	f.feed.Push(rest)
	f.feed.Push(jolt)
	f.feed.Push(rest)
	f.feed.Push(jolt)
}

func TestEmergencyService_StartPublishesSimulatedView(t *testing.T) {
	f := newEmergencyFixture(t, motion.NewFeedSampler(), entities.ModeStandard)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	var view models.EmergencyView
	require.Eventually(t, func() bool { return f.publisher.last(viewTopic, &view) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "device-1", view.DeviceID)
	assert.False(t, view.Active)
	assert.Equal(t, entities.ModeStandard, view.Mode)
	assert.True(t, view.Location.IsSimulated)
	assert.Equal(t, tracker.FallbackCoordinate, view.Location.Current)
	assert.Empty(t, view.Entities.Alerts)
	assert.Empty(t, view.Advisory)
	assert.True(t, f.publisher.on(viewTopic)[0].Retained)
	assert.True(t, f.svc.ShakeArmed())
}

func TestEmergencyService_ShakeBurstActivatesOnce(t *testing.T) {
	f := newEmergencyFixture(t, motion.NewFeedSampler(), entities.ModeStandard)
	activations := make(chan models.EmergencyActivation, 4)
	f.svc.OnActivate = func(a models.EmergencyActivation) { activations <- a }
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	f.burst()

	var activation models.EmergencyActivation
	select {
	case activation = <-activations:
	case <-time.After(time.Second):
		t.Fatal("shake burst did not activate")
	}
	assert.Equal(t, constants.ActivationSourceShake, activation.Source)
	assert.Equal(t, entities.ModeSelfEmergency, activation.Mode)
	assert.Equal(t, tracker.FallbackCoordinate, activation.Location)
	assert.True(t, activation.IsSimulated)
	assert.False(t, f.svc.ShakeArmed())

	// disarmed: a second burst changes nothing
	f.burst()
	assert.Len(t, activations, 0)

	view := f.svc.View()
	assert.True(t, view.Active)
	require.NotNil(t, view.ActivationID)
	assert.Equal(t, activation.ID, *view.ActivationID)
	assert.Len(t, view.Entities.Alerts, 1)
	assert.Len(t, view.Entities.Ambulances, 1)
	assert.Len(t, view.Entities.PoliceUnits, 1)
	assert.Len(t, view.Entities.Protectors, 3)

	var published models.EmergencyActivation
	require.Eventually(t, func() bool { return f.publisher.last(activationTopic, &published) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, activation.ID, published.ID)
	assert.Equal(t, 1, f.publisher.count(activationTopic))
}

func TestEmergencyService_ActivateWhileActive(t *testing.T) {
	f := newEmergencyFixture(t, motion.NewFeedSampler(), entities.ModeStandard)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	first, err := f.svc.Activate(constants.ActivationSourceManual)
	require.NoError(t, err)

	again, err := f.svc.Activate(constants.ActivationSourceMedical)
	assert.ErrorIs(t, err, services.ErrAlreadyActive)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, entities.ModeSelfEmergency, f.svc.View().Mode)
}

func TestEmergencyService_MedicalActivation(t *testing.T) {
	f := newEmergencyFixture(t, motion.NewFeedSampler(), entities.ModeStandard)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	activation, err := f.svc.Activate(constants.ActivationSourceMedical)
	require.NoError(t, err)

	assert.Equal(t, entities.ModeMedicalEmergency, activation.Mode)
	view := f.svc.View()
	assert.Equal(t, entities.ModeMedicalEmergency, view.Mode)
	assert.Len(t, view.Entities.Protectors, 3)
}

func TestEmergencyService_DeactivateRearms(t *testing.T) {
	f := newEmergencyFixture(t, motion.NewFeedSampler(), entities.ModePeerAlerts)
	activations := make(chan models.EmergencyActivation, 4)
	f.svc.OnActivate = func(a models.EmergencyActivation) { activations <- a }
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	f.burst()
	require.Len(t, activations, 1)
	<-activations

	require.NoError(t, f.svc.Deactivate())
	assert.True(t, f.svc.ShakeArmed())
	view := f.svc.View()
	assert.False(t, view.Active)
	assert.Nil(t, view.ActivationID)
	assert.Equal(t, entities.ModePeerAlerts, view.Mode)
	assert.Len(t, view.Entities.Alerts, 2)

	f.burst()
	assert.Len(t, activations, 1)

	require.NoError(t, f.svc.Deactivate())
	assert.Error(t, f.svc.Deactivate())
}

func TestEmergencyService_SetBaseMode(t *testing.T) {
	f := newEmergencyFixture(t, motion.NewFeedSampler(), entities.ModeStandard)
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	require.NoError(t, f.svc.SetBaseMode(entities.ModePeerAlerts))
	assert.Equal(t, entities.ModePeerAlerts, f.svc.View().Mode)

	assert.Error(t, f.svc.SetBaseMode(entities.ModeSelfEmergency))
	assert.Error(t, f.svc.SetBaseMode(entities.Mode("satellite")))

	// an active emergency keeps its mode, the base applies after deactivation
	_, err := f.svc.Activate(constants.ActivationSourceManual)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetBaseMode(entities.ModeStandard))
	assert.Equal(t, entities.ModeSelfEmergency, f.svc.View().Mode)
	require.NoError(t, f.svc.Deactivate())
	assert.Equal(t, entities.ModeStandard, f.svc.View().Mode)
}

func TestEmergencyService_MotionUnavailableIsAdvisory(t *testing.T) {
	tests := []struct {
		name     string
		feed     *motion.FeedSampler
		advisory string
	}{
		{"denied", motion.NewFeedSampler().WithPermission(motion.PermissionDenied, nil), constants.AdvisoryMotionDenied},
		{"unsupported", motion.NewFeedSampler().WithSupport(false), constants.AdvisoryMotionUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEmergencyFixture(t, tt.feed, entities.ModeStandard)
			require.NoError(t, f.svc.Start())
			defer f.svc.Stop()

			assert.Equal(t, tt.advisory, f.svc.View().Advisory)
			assert.False(t, f.svc.ShakeArmed())
			assert.False(t, tt.feed.Subscribed())

			// manual activation still works
			_, err := f.svc.Activate(constants.ActivationSourceManual)
			assert.NoError(t, err)
		})
	}
}

func TestEmergencyService_Lifecycle(t *testing.T) {
	feed := motion.NewFeedSampler()
	f := newEmergencyFixture(t, feed, entities.ModeStandard)

	assert.EqualError(t, f.svc.Stop(), "emergency service is not running")
	assert.Equal(t, tracker.PhaseUnstarted, f.svc.Location().Phase)

	require.NoError(t, f.svc.Start())
	assert.EqualError(t, f.svc.Start(), "emergency service is already running")
	assert.True(t, feed.Subscribed())
	assert.Equal(t, tracker.PhaseSimulated, f.svc.Location().Phase)

	require.NoError(t, f.svc.Stop())
	assert.False(t, feed.Subscribed())
	assert.Equal(t, tracker.PhaseStopped, f.svc.Location().Phase)
	_, err := f.svc.Activate(constants.ActivationSourceManual)
	assert.Error(t, err)

	// a new session gets a fresh tracker and detector
	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()
	assert.True(t, feed.Subscribed())
	assert.Equal(t, tracker.PhaseSimulated, f.svc.Location().Phase)
}

func TestEmergencyService_ActivationSurvivesFullPublishQueue(t *testing.T) {
	f := newEmergencyFixture(t, motion.NewFeedSampler(), entities.ModeStandard)
	gate := make(chan struct{})
	f.publisher.gate = gate

	require.NoError(t, f.svc.Start())
	defer f.svc.Stop()

	// the stalled broker lets view updates pile up past the queue depth
	for i := 0; i < 100; i++ {
		require.NoError(t, f.svc.SetBaseMode(entities.ModePeerAlerts))
	}

	activated := make(chan error, 1)
	go func() {
		_, err := f.svc.Activate(constants.ActivationSourceManual)
		activated <- err
	}()

	// give Activate time to reach the full queue before the broker recovers
	time.Sleep(50 * time.Millisecond)
	close(gate)
	require.NoError(t, <-activated)
	require.Eventually(t, func() bool { return f.publisher.count(activationTopic) == 1 }, time.Second, 5*time.Millisecond)
}
