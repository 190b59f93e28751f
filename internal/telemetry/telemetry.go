// Package telemetry forwards compass readings to the outside world.
package telemetry

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/relabs-tech/ecompass/internal/orientation"
)

// Publisher receives one reading per cycle.
type Publisher interface {
	Publish(r orientation.Reading) error
}

// MQTTClient is the part of mqtt.Client used for publishing.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// DefaultPublishTimeout bounds the wait for a publish acknowledgement so a
// dead broker cannot stall the render loop.
const DefaultPublishTimeout = 250 * time.Millisecond

// MQTTPublisher sends readings as retained JSON at QoS 0.
type MQTTPublisher struct {
	client  MQTTClient
	topic   string
	timeout time.Duration
}

// NewMQTTPublisher publishes on topic through client.
func NewMQTTPublisher(client MQTTClient, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, timeout: DefaultPublishTimeout}
}

func (p *MQTTPublisher) Publish(r orientation.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "mqtt: marshal reading")
	}
	token := p.client.Publish(p.topic, 0, true, payload)
	if !token.WaitTimeout(p.timeout) {
		return errors.Errorf("mqtt: publish %s: timed out after %v", p.topic, p.timeout)
	}
	return errors.Wrapf(token.Error(), "mqtt: publish %s", p.topic)
}

// Multi fans a reading out to several publishers. Every publisher is
// called; the errors are combined.
type Multi []Publisher

func (m Multi) Publish(r orientation.Reading) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(r))
	}
	return err
}
