package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/benmeehan/sos-agent/internal/constants"
	"github.com/benmeehan/sos-agent/internal/entities"
	mqtt_middleware "github.com/benmeehan/sos-agent/internal/middlewares/mqtt"
	"github.com/benmeehan/sos-agent/internal/models"
	"github.com/benmeehan/sos-agent/pkg/motion"
	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// Controller is the set of coordinator operations reachable from the control topic.
type Controller interface {
	Activate(source string) (models.EmergencyActivation, error)
	Deactivate() error
	SetBaseMode(mode entities.Mode) error
}

// ControlService receives presentation layer requests over MQTT (manual SOS, mode
// switches, forwarded motion samples) and acknowledges them on <topic>/response.
type ControlService struct {
	// Configuration Fields
	subTopic string
	qos      int

	// Dependencies
	subscriber mqtt_middleware.Subscriber
	publisher  mqtt_middleware.Publisher
	controller Controller
	samples    func(motion.Sample) // nil when motion comes from hardware
	logger     zerolog.Logger

	// Internal state management
	mu       sync.Mutex
	wg       sync.WaitGroup
	running  bool
	stopping bool
}

// NewControlService initializes a new ControlService. samples may be nil.
func NewControlService(subTopic string, qos int, subscriber mqtt_middleware.Subscriber, publisher mqtt_middleware.Publisher,
	controller Controller, samples func(motion.Sample), logger zerolog.Logger) *ControlService {
	return &ControlService{
		subTopic:   subTopic,
		qos:        qos,
		subscriber: subscriber,
		publisher:  publisher,
		controller: controller,
		samples:    samples,
		logger:     logger,
	}
}

// Start subscribes to the control topic.
func (cs *ControlService) Start() error {
	cs.mu.Lock()
	if cs.running {
		cs.mu.Unlock()
		cs.logger.Warn().Msg("ControlService is already running")
		return errors.New("control service is already running")
	}
	cs.running = true
	cs.stopping = false
	cs.mu.Unlock()

	if err := cs.subscriber.Subscribe(cs.subTopic, byte(cs.qos), cs.HandleMessage); err != nil {
		cs.logger.Error().Err(err).Str("topic", cs.subTopic).Msg("Failed to subscribe to MQTT topic")
		cs.mu.Lock()
		cs.running = false
		cs.mu.Unlock()
		return err
	}

	cs.logger.Info().Str("topic", cs.subTopic).Msg("ControlService subscribed to MQTT topic")
	return nil
}

// Stop unsubscribes and waits for in-flight commands to finish.
func (cs *ControlService) Stop() error {
	cs.mu.Lock()
	if !cs.running {
		cs.mu.Unlock()
		cs.logger.Warn().Msg("ControlService is not running")
		return errors.New("control service is not running")
	}
	cs.stopping = true
	cs.mu.Unlock()

	err := cs.subscriber.Unsubscribe(cs.subTopic)
	cs.wg.Wait()

	cs.mu.Lock()
	cs.running = false
	cs.mu.Unlock()

	if err != nil {
		cs.logger.Error().Err(err).Str("topic", cs.subTopic).Msg("Failed to unsubscribe from MQTT topic")
		return err
	}
	cs.logger.Info().Msg("ControlService stopped successfully")
	return nil
}

// HandleMessage decodes and executes one control command.
func (cs *ControlService) HandleMessage(_ MQTT.Client, msg MQTT.Message) {
	cs.mu.Lock()
	if cs.stopping {
		cs.mu.Unlock()
		cs.logger.Warn().Msg("Received command but service is stopping, ignoring command")
		return
	}
	cs.wg.Add(1)
	cs.mu.Unlock()
	defer cs.wg.Done()

	var cmd models.ControlCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		cs.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Malformed control command")
		cs.respondAsync(models.ControlResult{Error: "malformed command"})
		return
	}

	err := cs.Execute(cmd)
	if cmd.Action == constants.ControlMotion && err == nil {
		// samples are high rate and not acknowledged
		return
	}
	result := models.ControlResult{Action: cmd.Action, OK: err == nil}
	if err != nil {
		cs.logger.Warn().Err(err).Str("action", cmd.Action).Msg("Control command failed")
		result.Error = err.Error()
	}
	cs.respondAsync(result)
}

// Execute applies cmd to the coordinator.
func (cs *ControlService) Execute(cmd models.ControlCommand) error {
	switch cmd.Action {
	case constants.ControlActivate:
		source := cmd.Source
		if source == "" {
			source = constants.ActivationSourceManual
		}
		if source != constants.ActivationSourceManual && source != constants.ActivationSourceMedical {
			return fmt.Errorf("unsupported activation source %q", source)
		}
		_, err := cs.controller.Activate(source)
		return err
	case constants.ControlDeactivate:
		return cs.controller.Deactivate()
	case constants.ControlSetMode:
		mode, err := entities.ParseMode(cmd.Mode)
		if err != nil {
			return err
		}
		return cs.controller.SetBaseMode(mode)
	case constants.ControlMotion:
		if cs.samples == nil {
			return errors.New("motion is read from hardware on this device")
		}
		if cmd.Sample == nil {
			return errors.New("motion command without sample")
		}
		cs.samples(*cmd.Sample)
		return nil
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

// respondAsync keeps broker round trips off paho's message router goroutine.
// The caller must hold a wg slot.
func (cs *ControlService) respondAsync(result models.ControlResult) {
	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		cs.respond(result)
	}()
}

func (cs *ControlService) respond(result models.ControlResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		cs.logger.Error().Err(err).Msg("Failed to serialize control result")
		return
	}
	topic := cs.subTopic + "/response"
	if err := cs.publisher.Publish(topic, byte(cs.qos), false, payload); err != nil {
		cs.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish control result")
	}
}
