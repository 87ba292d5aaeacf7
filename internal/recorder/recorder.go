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

// Package recorder persists sensor samples. Every sink is insert-only and
// reports its failures to the caller.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"thermoreg/internal/sensor"
	"thermoreg/pkg/logger"
)

type Recorder interface {
	Record(ctx context.Context, s sensor.Sample) error
}

// payload is the JSON document sent to message-based sinks.
type payload struct {
	ID    string    `json:"id"`
	Node  string    `json:"node,omitempty"`
	TempC float64   `json:"temp_c"`
	Time  time.Time `json:"timestamp"`
}

func newPayload(node string, s sensor.Sample) payload {
	return payload{ID: s.ID, Node: node, TempC: s.ValueC, Time: s.CapturedAt.UTC()}
}

type sink struct {
	name string
	rec  Recorder
}

// Fanout records every sample to all of its sinks. A failing sink does not
// stop the others; all failures are joined into the returned error.
type Fanout struct {
	sinks []sink
	log   *logger.Logger
}

func NewFanout() *Fanout {
	return &Fanout{log: logger.New("Recorder")}
}

func (f *Fanout) Add(name string, r Recorder) *Fanout {
	f.sinks = append(f.sinks, sink{name: name, rec: r})
	f.log.Info("sink enabled: %s", name)
	return f
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Names() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.name)
	}
	return names
}

func (f *Fanout) Record(ctx context.Context, s sensor.Sample) error {
	var errs []error
	for _, sk := range f.sinks {
		if err := sk.rec.Record(ctx, s); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sk.name, err))
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes every sink that holds a resource.
func (f *Fanout) Close() error {
	var errs []error
	for _, sk := range f.sinks {
		if c, ok := sk.rec.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", sk.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
