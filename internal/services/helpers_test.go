package services_test

import (
	"encoding/json"
	"sync"

	mqttLib "github.com/eclipse/paho.mqtt.golang"
)

type published struct {
	Topic    string
	QOS      byte
	Retained bool
	Payload  []byte
}

// recordingPublisher captures publishes made from background goroutines.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
	// gate, when set, holds every publish until it is closed
	gate chan struct{}
}

func (r *recordingPublisher) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, published{Topic: topic, QOS: qos, Retained: retained, Payload: payload.([]byte)})
	return r.err
}

func (r *recordingPublisher) Subscribe(string, byte, mqttLib.MessageHandler) error { return nil }
func (r *recordingPublisher) Unsubscribe(...string) error                          { return nil }

func (r *recordingPublisher) on(topic string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, m := range r.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingPublisher) count(topic string) int {
	return len(r.on(topic))
}

// last decodes the most recent message on topic into v and reports whether there was one.
func (r *recordingPublisher) last(topic string, v any) bool {
	msgs := r.on(topic)
	if len(msgs) == 0 {
		return false
	}
	return json.Unmarshal(msgs[len(msgs)-1].Payload, v) == nil
}
