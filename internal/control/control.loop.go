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

package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"thermoreg/internal/actuator"
	"thermoreg/internal/events"
	"thermoreg/internal/sensor"
	"thermoreg/pkg/eventbus"
	"thermoreg/pkg/logger"
)

var ErrInvalidTarget = errors.New("control: target temperature is not a finite number")

type Reader interface {
	Read(ctx context.Context) (sensor.Sample, error)
}

type Actuators interface {
	Command(heat, cool float64) error
	State() actuator.State
}

// Result describes one control decision. CurrentC is nil when no reading
// was available.
type Result struct {
	Status   Status    `json:"status"`
	CurrentC *float64  `json:"current_temp"`
	TargetC  float64   `json:"target_temp"`
	HeatDuty float64   `json:"heat_duty"`
	CoolDuty float64   `json:"cool_duty"`
	At       time.Time `json:"time"`
}

// Loop is the regulator. It keeps no state between calls: every Apply
// reads the sensor and recomputes both outputs from scratch.
type Loop struct {
	reader Reader
	act    Actuators
	calc   Calculator
	bus    *eventbus.Bus
	now    func() time.Time
	log    *logger.Logger
}

func NewLoop(reader Reader, act Actuators) *Loop {
	return &Loop{
		reader: reader,
		act:    act,
		calc:   NewProportional(DefaultGain),
		now:    time.Now,
		log:    logger.New("Control"),
	}
}

func (l *Loop) WithCalculator(c Calculator) *Loop {
	l.calc = c
	return l
}

// WithBus publishes a ControlUpdate for every Apply.
func (l *Loop) WithBus(bus *eventbus.Bus) *Loop {
	l.bus = bus
	return l
}

// Status is the read-only classification used by status queries.
func (l *Loop) Status(current, target float64) Status {
	return Classify(current, target)
}

// Decide returns the status and the output pair for a reading.
func (l *Loop) Decide(current, target float64) (Status, float64, float64) {
	switch st := Classify(current, target); st {
	case Heating:
		return st, l.calc.Compute(current, target), 0
	case Cooling:
		return st, 0, l.calc.Compute(target, current)
	default:
		return st, 0, 0
	}
}

// Apply reads the sensor and drives the outputs toward target. On a sensor
// failure the outputs are left as they were and the status is Unknown. An
// actuator failure is returned wrapping actuator.ErrWriteFailure; the
// result then carries the pair that is actually in effect.
func (l *Loop) Apply(ctx context.Context, target float64) (Result, error) {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return Result{Status: Unknown, TargetC: target, At: l.now()}, ErrInvalidTarget
	}

	res, err := l.Observe(ctx, target)
	if err != nil {
		l.log.Warn("sensor read failed, outputs unchanged: %v", err)
		l.publish(res, false, err)
		return res, err
	}

	status, heat, cool := l.Decide(*res.CurrentC, target)
	res.Status = status
	if err := l.act.Command(heat, cool); err != nil {
		st := l.act.State()
		res.HeatDuty, res.CoolDuty = st.HeatDuty, st.CoolDuty
		l.log.Error("control not applied (%s, heat=%.1f%%, cool=%.1f%%): %v", status, heat, cool, err)
		l.publish(res, false, err)
		return res, fmt.Errorf("control not applied: %w", err)
	}
	res.HeatDuty, res.CoolDuty = heat, cool

	l.log.Debug("current=%.3f°C target=%.2f°C -> %s heat=%.1f%% cool=%.1f%%",
		*res.CurrentC, target, status, heat, cool)
	l.publish(res, true, nil)
	return res, nil
}

// Observe reads the sensor and classifies against target without touching
// the outputs. The reported duties are the pair currently in effect.
func (l *Loop) Observe(ctx context.Context, target float64) (Result, error) {
	st := l.act.State()
	res := Result{
		Status:   Unknown,
		TargetC:  target,
		HeatDuty: st.HeatDuty,
		CoolDuty: st.CoolDuty,
		At:       l.now(),
	}
	sample, err := l.reader.Read(ctx)
	if err != nil {
		return res, err
	}
	current := sample.ValueC
	res.CurrentC = &current
	res.Status = Classify(current, target)
	res.At = sample.CapturedAt
	return res, nil
}

func (l *Loop) publish(res Result, applied bool, err error) {
	if l.bus == nil {
		return
	}
	ev := events.ControlUpdate{
		Status:   res.Status.String(),
		CurrentC: res.CurrentC,
		TargetC:  res.TargetC,
		HeatDuty: res.HeatDuty,
		CoolDuty: res.CoolDuty,
		Applied:  applied,
		Time:     res.At,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	l.bus.Publish(events.TopicControl, ev)
}
