package services_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/benmeehan/sos-agent/internal/constants"
	"github.com/benmeehan/sos-agent/internal/entities"
	"github.com/benmeehan/sos-agent/internal/metrics_collectors"
	"github.com/benmeehan/sos-agent/internal/mocks"
	"github.com/benmeehan/sos-agent/internal/models"
	"github.com/benmeehan/sos-agent/internal/services"
	"github.com/benmeehan/sos-agent/internal/tracker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusSource struct {
	view  models.EmergencyView
	armed bool
}

func (f fakeStatusSource) View() models.EmergencyView { return f.view }
func (f fakeStatusSource) ShakeArmed() bool           { return f.armed }

type constantMetric struct{}

func (constantMetric) Name() string                             { return "uptime" }
func (constantMetric) Unit() string                             { return "seconds" }
func (constantMetric) Collect(context.Context) (float64, error) { return 3600, nil }

func TestStatusService_BuildStatus(t *testing.T) {
	deviceInfo := new(mocks.MockDeviceInfo)
	deviceInfo.On("GetDeviceID").Return("device-1")
	metrics := metrics_collectors.NewMetricsRegistry(zerolog.Nop())
	metrics.Register(constantMetric{})

	calm := fakeStatusSource{
		view:  models.EmergencyView{Mode: entities.ModeStandard, Location: tracker.LocationState{IsSimulated: true}},
		armed: true,
	}
	svc := services.NewStatusService("sos/status", time.Minute, deviceInfo, 0, &recordingPublisher{}, calm, metrics, zerolog.Nop())

	status := svc.BuildStatus(context.Background())
	assert.Equal(t, "device-1", status.DeviceID)
	assert.Equal(t, constants.StatusAlive, status.Status)
	assert.True(t, status.ShakeArmed)
	assert.True(t, status.IsSimulated)
	assert.Equal(t, "standard", status.Mode)
	assert.Equal(t, map[string]float64{"uptime": 3600}, status.Metrics)

	svc.Source = fakeStatusSource{view: models.EmergencyView{Active: true, Mode: entities.ModeSelfEmergency}}
	svc.Metrics = nil
	status = svc.BuildStatus(context.Background())
	assert.Equal(t, constants.StatusEmergency, status.Status)
	assert.False(t, status.ShakeArmed)
	assert.Nil(t, status.Metrics)
}

func TestStatusService_Loop(t *testing.T) {
	deviceInfo := new(mocks.MockDeviceInfo)
	deviceInfo.On("GetDeviceID").Return("device-1")
	publisher := &recordingPublisher{}

	svc := services.NewStatusService("sos/status", 5*time.Millisecond, deviceInfo, 0, publisher,
		fakeStatusSource{view: models.EmergencyView{Mode: entities.ModeStandard}}, nil, zerolog.Nop())

	assert.EqualError(t, svc.Stop(), "status service is not running")
	require.NoError(t, svc.Start())
	assert.EqualError(t, svc.Start(), "status service is already running")

	require.Eventually(t, func() bool { return publisher.count("sos/status") > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Stop())

	var status models.Status
	require.NoError(t, json.Unmarshal(publisher.on("sos/status")[0].Payload, &status))
	assert.Equal(t, constants.StatusAlive, status.Status)
}
