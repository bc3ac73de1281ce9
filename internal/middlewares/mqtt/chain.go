package mqtt

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/sos-agent/pkg/mqtt"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTokenTimeout bounds how long a publish may wait for the broker.
const DefaultTokenTimeout = 10 * time.Second

// ErrTokenTimeout is returned when the broker did not acknowledge in time.
var ErrTokenTimeout = errors.New("timed out waiting for MQTT broker")

// ChainedMQTTClient wraps an MQTT client with a middleware chain.
type ChainedMQTTClient struct {
	head MQTTMiddleware
}

// NewChainedMQTTClient links middlewares in order, terminating in the raw client.
func NewChainedMQTTClient(mqttClient mqtt.MQTTClient, middlewares []MQTTMiddleware) *ChainedMQTTClient {
	var next MQTTMiddleware = &directMQTTClient{mqttClient: mqttClient, timeout: DefaultTokenTimeout}
	for i := len(middlewares) - 1; i >= 0; i-- {
		middlewares[i].SetNext(next)
		next = middlewares[i]
	}
	return &ChainedMQTTClient{head: next}
}

// Init initializes every middleware in the chain.
func (c *ChainedMQTTClient) Init(params interface{}) error {
	for mw := c.head; mw != nil; {
		if err := mw.Init(params); err != nil {
			return fmt.Errorf("failed to init middleware: %w", err)
		}
		linked, ok := mw.(interface{ Next() MQTTMiddleware })
		if !ok {
			break
		}
		mw = linked.Next()
	}
	return nil
}

// Publish sends a message through the middleware chain.
func (c *ChainedMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return c.head.Publish(topic, qos, retained, payload)
}

// Subscribe subscribes through the middleware chain.
func (c *ChainedMQTTClient) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	return c.head.Subscribe(topic, qos, callback)
}

// Unsubscribe unsubscribes through the middleware chain.
func (c *ChainedMQTTClient) Unsubscribe(topics ...string) error {
	return c.head.Unsubscribe(topics...)
}

// SetNext is a no-op: the chain is its own entry point.
func (c *ChainedMQTTClient) SetNext(_ MQTTMiddleware) {}

// directMQTTClient terminates the chain and talks to the broker.
type directMQTTClient struct {
	mqttClient mqtt.MQTTClient
	timeout    time.Duration
}

func (d *directMQTTClient) Init(_ interface{}) error {
	return nil
}

func (d *directMQTTClient) SetNext(_ MQTTMiddleware) {}

func (d *directMQTTClient) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	return d.wait(d.mqttClient.Publish(topic, qos, retained, payload))
}

func (d *directMQTTClient) Subscribe(topic string, qos byte, callback mqttLib.MessageHandler) error {
	return d.wait(d.mqttClient.Subscribe(topic, qos, callback))
}

func (d *directMQTTClient) Unsubscribe(topics ...string) error {
	return d.wait(d.mqttClient.Unsubscribe(topics...))
}

func (d *directMQTTClient) wait(token mqttLib.Token) error {
	if !token.WaitTimeout(d.timeout) {
		return ErrTokenTimeout
	}
	return token.Error()
}
