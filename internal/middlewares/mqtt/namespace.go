package mqtt

import (
	"errors"
	"strings"

	"github.com/benmeehan/sos-agent/pkg/identity"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// NamespaceMiddleware scopes every topic under <prefix>/<device id>/ so several agents
// can share one broker without their feeds colliding.
type NamespaceMiddleware struct {
	next       MQTTMiddleware
	prefix     string
	deviceInfo identity.DeviceInfoInterface
	logger     zerolog.Logger
	namespace  string
}

// NewNamespaceMiddleware creates the middleware; Init must run before use.
func NewNamespaceMiddleware(prefix string, deviceInfo identity.DeviceInfoInterface, logger zerolog.Logger) *NamespaceMiddleware {
	return &NamespaceMiddleware{
		prefix:     strings.Trim(prefix, "/"),
		deviceInfo: deviceInfo,
		logger:     logger,
	}
}

// SetNext sets the next middleware in the chain.
func (m *NamespaceMiddleware) SetNext(next MQTTMiddleware) {
	m.next = next
}

// Init resolves the namespace from the device identity.
func (m *NamespaceMiddleware) Init(_ interface{}) error {
	id := m.deviceInfo.GetDeviceID()
	if id == "" {
		return errors.New("namespace middleware: device id is empty")
	}
	if m.prefix == "" {
		m.namespace = id
	} else {
		m.namespace = m.prefix + "/" + id
	}
	m.logger.Debug().Str("namespace", m.namespace).Msg("Namespace middleware initialized")
	return nil
}

// Topic returns the namespaced form of topic.
func (m *NamespaceMiddleware) Topic(topic string) string {
	if m.namespace == "" {
		return topic
	}
	return m.namespace + "/" + strings.TrimLeft(topic, "/")
}

func (m *NamespaceMiddleware) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return m.next.Publish(m.Topic(topic), qos, retained, payload)
}

func (m *NamespaceMiddleware) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	return m.next.Subscribe(m.Topic(topic), qos, callback)
}

func (m *NamespaceMiddleware) Unsubscribe(topics ...string) error {
	scoped := make([]string, len(topics))
	for i, t := range topics {
		scoped[i] = m.Topic(t)
	}
	return m.next.Unsubscribe(scoped...)
}

// Next exposes the following link so the chain can initialise it.
func (m *NamespaceMiddleware) Next() MQTTMiddleware {
	return m.next
}
