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
	"errors"

	"thermoreg/internal/sensor"

	"github.com/segmentio/kafka-go"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka appends samples to a topic, keyed by node so one zone stays on one
// partition.
type Kafka struct {
	writer kafkaMessageWriter
	node   string
}

func NewKafka(brokers []string, topic, node string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: w, node: node}, nil
}

func (k *Kafka) Record(ctx context.Context, s sensor.Sample) error {
	data, err := json.Marshal(newPayload(k.node, s))
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(k.node),
		Value: data,
		Time:  s.CapturedAt,
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
