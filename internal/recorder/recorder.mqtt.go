// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"thermoreg/internal/sensor"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTT publishes each sample as a JSON message (QoS 1, not retained).
type MQTT struct {
	client mqtt.Client
	topic  string
	node   string
}

// NewMQTT connects to broker (tcp://host:1883). The client reconnects on
// its own after the first successful connection.
func NewMQTT(broker, topic, node string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID("thermoreg-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return newMQTTWithClient(c, topic, node), nil
}

func newMQTTWithClient(c mqtt.Client, topic, node string) *MQTT {
	return &MQTT{client: c, topic: topic, node: node}
}

func (m *MQTT) Record(ctx context.Context, s sensor.Sample) error {
	data, err := json.Marshal(newPayload(m.node, s))
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 1, false, data)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
