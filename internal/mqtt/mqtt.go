package mqtt

import (
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewClient connects an MQTT client to the broker.
func NewClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// Publisher adapts the paho client to the engine's publish capability.
// Commands go out at QoS 1 (at-least-once).
type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewPublisher wraps client with a bounded per-publish wait.
func NewPublisher(client mqtt.Client, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{client: client, timeout: timeout}
}

// Publish sends payload on topic, waiting at most the configured timeout for
// broker confirmation.
func (p *Publisher) Publish(topic string, payload []byte, retain bool) error {
	token := p.client.Publish(topic, 1, retain, payload)
	if !token.WaitTimeout(p.timeout) {
		return errors.New("publish confirmation timed out")
	}
	return token.Error()
}
