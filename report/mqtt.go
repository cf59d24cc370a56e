package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/victorjacobs/hass-poller/sensor"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of mqtt.Client used for mirroring.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT mirrors every result as retained JSON on {prefix}/{entity_id}.
type MQTT struct {
	client Publisher
	prefix string
}

func NewMQTT(client Publisher, prefix string) *MQTT {
	return &MQTT{
		client: client,
		prefix: strings.TrimRight(prefix, "/"),
	}
}

func (m *MQTT) Topic(entry sensor.Entry) string {
	return fmt.Sprintf("%v/%v", m.prefix, entry.EntityID)
}

func (m *MQTT) Report(cycle *sensor.Cycle) error {
	var errs []error
	for _, r := range cycle.Results {
		payload, err := json.Marshal(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		t := m.client.Publish(m.Topic(r.Entry), 0, true, payload)
		if !t.WaitTimeout(publishTimeout) {
			errs = append(errs, fmt.Errorf("MQTT publishing %v timed out", r.Entry.EntityID))
			continue
		}
		if t.Error() != nil {
			errs = append(errs, fmt.Errorf("MQTT publishing %v failed: %w", r.Entry.EntityID, t.Error()))
		}
	}
	return errors.Join(errs...)
}
