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

// Package sampling runs the periodic sensor-to-recorder task. It never
// touches the outputs.
package sampling

import (
	"context"
	"sync/atomic"
	"time"

	"thermoreg/internal/events"
	"thermoreg/internal/recorder"
	"thermoreg/internal/sensor"
	"thermoreg/pkg/eventbus"
	"thermoreg/pkg/logger"
)

type Reader interface {
	Read(ctx context.Context) (sensor.Sample, error)
}

type Stats struct {
	Cycles         uint64 `json:"cycles"`
	Recorded       uint64 `json:"recorded"`
	ReadFailures   uint64 `json:"read_failures"`
	RecordFailures uint64 `json:"record_failures"`
}

type Service struct {
	reader   Reader
	rec      recorder.Recorder
	interval time.Duration
	bus      *eventbus.Bus
	log      *logger.Logger

	cycles, recorded, readFailures, recordFailures atomic.Uint64
}

func New(reader Reader, rec recorder.Recorder, interval time.Duration) *Service {
	return &Service{
		reader:   reader,
		rec:      rec,
		interval: interval,
		log:      logger.New("Sampling"),
	}
}

func (s *Service) WithBus(bus *eventbus.Bus) *Service {
	s.bus = bus
	return s
}

func (s *Service) Stats() Stats {
	return Stats{
		Cycles:         s.cycles.Load(),
		Recorded:       s.recorded.Load(),
		ReadFailures:   s.readFailures.Load(),
		RecordFailures: s.recordFailures.Load(),
	}
}

// Run samples once immediately, then once per interval until ctx is done.
// A slow cycle delays the next; missed ticks are dropped.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running... (every %v)", s.interval)
	defer s.log.Info("Stopped.")

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one read-and-record cycle.
func (s *Service) Tick(ctx context.Context) {
	s.cycles.Add(1)

	sample, err := s.reader.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.readFailures.Add(1)
		s.log.Warn("read failed, skipping cycle: %v", err)
		s.publish(events.SampleUpdate{Error: err.Error(), Time: time.Now()})
		return
	}

	ev := events.SampleUpdate{ID: sample.ID, ValueC: sample.ValueC, Time: sample.CapturedAt}
	if err := s.rec.Record(ctx, sample); err != nil {
		s.recordFailures.Add(1)
		s.log.Error("record %s (%.3f°C): %v", sample.ID, sample.ValueC, err)
		ev.Error = err.Error()
	} else {
		s.recorded.Add(1)
		ev.Recorded = true
		s.log.Debug("recorded %s: %.3f°C", sample.ID, sample.ValueC)
	}
	s.publish(ev)
}

func (s *Service) publish(ev events.SampleUpdate) {
	if s.bus != nil {
		s.bus.Publish(events.TopicSample, ev)
	}
}
